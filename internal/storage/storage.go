// Package storage implements conversation persistence and disk usage reporting.
package storage

import "github.com/hyperjump/kiku/internal/conversation"

var (
	_ conversation.Repository = (*SQLiteRepository)(nil)
	_ conversation.Repository = (*MemoryRepository)(nil)
)
