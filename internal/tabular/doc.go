// Package tabular moves row tables in and out of spreadsheet files. It reads
// CSV, XLSX and XLSM input, prepares the rows for a run and writes the
// annotated result as XLSX.
package tabular
