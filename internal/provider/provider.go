// Package provider holds the in-process snapshot sources the aggregator
// can fall back to when no bundle is supplied.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"workinbox/internal/domain"
)

// Static serves a fixed in-memory bundle.
type Static struct {
	Snapshot domain.Bundle
}

func (s Static) Bundle(ctx context.Context) (domain.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bundle{}, err
	}
	return s.Snapshot, nil
}

// File reads a YAML or JSON snapshot on every call.
type File struct {
	Path string
}

func (f File) Bundle(ctx context.Context) (domain.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bundle{}, err
	}
	return ReadSnapshot(f.Path)
}

// ReadSnapshot parses a snapshot file keyed by purchase_orders, invoices,
// amendments and contracts. Files ending in .json are read as JSON, the
// rest as YAML.
func ReadSnapshot(path string) (domain.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Bundle{}, err
	}
	b, err := ParseSnapshot(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return b, nil
}

func ParseSnapshot(data []byte, asJSON bool) (domain.Bundle, error) {
	var b domain.Bundle
	if asJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&b); err != nil {
			return domain.Bundle{}, fmt.Errorf("invalid snapshot json: %w", err)
		}
		return b, nil
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return domain.Bundle{}, fmt.Errorf("invalid snapshot yaml: %w", err)
	}
	return b, nil
}

// ParseRecords reads a bare list of records, as YAML or JSON.
func ParseRecords(data []byte, asJSON bool) ([]domain.Record, error) {
	var recs []domain.Record
	if asJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&recs); err != nil {
			return nil, fmt.Errorf("invalid records json: %w", err)
		}
		return recs, nil
	}
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("invalid records yaml: %w", err)
	}
	return recs, nil
}
