package models

import (
	"time"
)

// Kind classifies a watched file by its extension
type Kind string

const (
	KindXML Kind = "xml"
	KindPDF Kind = "pdf"
)

// Extension returns the file extension that maps to the kind
func (k Kind) Extension() string {
	return "." + string(k)
}

// SourceName identifies which watcher produced an event
type SourceName string

const (
	SourceSettle SourceName = "settle" // debounced writes
	SourceMove   SourceName = "move"   // atomic move into the directory
	SourceManual SourceName = "manual"
)

// WatchEvent is a settled or moved file reported by a watcher
type WatchEvent struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Source     SourceName `json:"source"`
	ReceivedAt time.Time  `json:"receivedAt"`
}

// Pair is one XML invoice and one PDF ready for joint dispatch
type Pair struct {
	ID      string `json:"id"`
	XMLPath string `json:"xmlPath"`
	PDFPath string `json:"pdfPath"`
}

// DispatchStatus is the outcome of a dispatch
type DispatchStatus string

const (
	DispatchSucceeded DispatchStatus = "succeeded"
	DispatchFailed    DispatchStatus = "failed"
)

// DispatchRecord is the journal entry written for every dispatched pair
type DispatchRecord struct {
	ID         string         `json:"id"`
	PairID     string         `json:"pairId"`
	XMLPath    string         `json:"xmlPath"`
	PDFPath    string         `json:"pdfPath"`
	OutputPath string         `json:"outputPath"`
	Status     DispatchStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Duration returns how long the transform took
func (r DispatchRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HistoryRequest filters journal listings
type HistoryRequest struct {
	Status DispatchStatus `json:"status,omitempty"`
	Limit  int            `json:"limit,omitempty"`
}

// Stats summarizes the dispatch journal
type Stats struct {
	TotalEvents     int            `json:"totalEvents"`
	TotalDispatches int            `json:"totalDispatches"`
	ByStatus        map[string]int `json:"byStatus"`
	LastDispatchAt  *time.Time     `json:"lastDispatchAt,omitempty"`
}
