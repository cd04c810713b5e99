// Package printing renders payment receipts as PDF.
//
// A ReceiptPDFRenderer fills the receipt HTML template from a
// ReceiptDocument and hands the page to a PDFRenderer. ChromedpRenderer is
// the production PDFRenderer; it drives a local or remote headless Chrome
// over the DevTools protocol.
//
//	chrome, err := NewChromedpRenderer(&ChromedpConfig{RemoteURL: "ws://chrome:9222"})
//	if err != nil {
//	    return err
//	}
//	receipts.SetRenderer(NewReceiptPDFRenderer(chrome, WithLocale("en-UG")))
package printing
