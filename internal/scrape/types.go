package scrape

// Status is the outcome recorded for a single row.
type Status string

// Row status values written by workers.
const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Terminal reports whether a worker has already resolved the row.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Column names understood by the loader and written by the output stage.
const (
	ColumnURL          = "URL"
	ColumnStatus       = "STATUS"
	ColumnArticleTitle = "ARTICLE_TITLE"
	ColumnText         = "TEXT"
)

// OutcomeColumns lists the columns annotated by a run, in output order.
var OutcomeColumns = []string{ColumnStatus, ColumnArticleTitle, ColumnText}

// Article is what an Extractor returns for a successfully scraped URL.
type Article struct {
	Title string
	Body  string
}

// Row is one input URL plus its scraping outcome.
type Row struct {
	// URL is immutable once the table is loaded.
	URL string
	// Status starts as StatusPending and is resolved exactly once.
	Status Status
	// ArticleTitle and Text are only set when Status is StatusSuccess.
	ArticleTitle string
	Text         string
	// Values holds the row's other input cells keyed by column name.
	Values map[string]string
}

// NewRow returns a pending row for url.
func NewRow(url string, values map[string]string) Row {
	return Row{URL: url, Status: StatusPending, Values: values}
}

// MarkSuccess records an extracted article. It returns false if the row was
// already resolved.
func (r *Row) MarkSuccess(article Article) bool {
	if r.Status.Terminal() {
		return false
	}
	r.Status = StatusSuccess
	r.ArticleTitle = article.Title
	r.Text = article.Body
	return true
}

// MarkError records a failed extraction. It returns false if the row was
// already resolved.
func (r *Row) MarkError() bool {
	if r.Status.Terminal() {
		return false
	}
	r.Status = StatusError
	r.ArticleTitle = ""
	r.Text = ""
	return true
}

// Value returns the cell for column, including the outcome columns.
func (r Row) Value(column string) string {
	switch column {
	case ColumnURL:
		return r.URL
	case ColumnStatus:
		return string(r.Status)
	case ColumnArticleTitle:
		return r.ArticleTitle
	case ColumnText:
		return r.Text
	default:
		return r.Values[column]
	}
}
