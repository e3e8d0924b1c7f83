// Package repository is the Postgres-backed persistence layer stage
// executors call for video metadata, transcripts, moments, and the
// generation configs each moment batch is linked to.
package repository

import "time"

type Video struct {
	ID              string
	CloudURL        string
	SourceURL       string
	DurationSeconds float64
	SizeBytes       int64
	Codec           string
	Width           int64
	Height          int64
	FPS             float64
	CreatedAt       time.Time
}

type WordTimestamp struct {
	Word  string
	Start float64
	End   float64
}

type SegmentTimestamp struct {
	Start float64
	Text  string
}

type Transcript struct {
	VideoID           string
	FullText          string
	WordTimestamps    []WordTimestamp
	SegmentTimestamps []SegmentTimestamp
	CreatedAt         time.Time
}

type Moment struct {
	ID                 string
	VideoID            string
	StartTime          float64
	EndTime            float64
	Title              string
	IsRefined          bool
	ParentID           string
	LocalClipPath      string
	CloudClipPath      string
	GenerationConfigID string
}

type GenerationConfig struct {
	ID          string
	VideoID     string
	Model       string
	Temperature float64
	Prompt      string
	CreatedAt   time.Time
}
