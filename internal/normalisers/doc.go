// Package normalisers holds the text stages of the pipeline. pdf extracts
// per-page text from PDFs, with optical recognition for sparse pages, and
// text repairs and page-marks the extracted text before chunking.
package normalisers
