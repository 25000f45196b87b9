package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrCorruptDocument is returned when a stored document cannot be decoded.
var ErrCorruptDocument = errors.New("settings document is corrupt")

// Record is the persisted form of one guild's settings.
type Record struct {
	WelcomeChannel string  `json:"welcome_channel"`
	ModLogChannel  string  `json:"mod_log_channel"`
	AutoRole       *string `json:"auto_role"`
	Prefix         string  `json:"prefix"`
}

// Document maps a guild id string to its record. It is always read and written whole.
type Document map[string]Record

// Backend loads and saves the settings document.
type Backend interface {
	// Load returns the stored document, or an empty one when nothing was saved yet.
	Load(ctx context.Context) (Document, error)
	// Save replaces the stored document.
	Save(ctx context.Context, doc Document) error
	// Close releases backend resources.
	Close() error
}

// Encode serializes a document.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}

	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings document: %w", err)
	}

	return data, nil
}

// Decode parses a document. Empty input decodes to an empty document.
func Decode(data []byte) (Document, error) {
	doc := Document{}
	if len(data) == 0 {
		return doc, nil
	}

	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}

	if doc == nil {
		doc = Document{}
	}

	return doc, nil
}
