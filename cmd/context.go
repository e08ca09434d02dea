package cmd

import (
	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/compress"
	"github.com/quillsec/quill/internal/config"
	"github.com/quillsec/quill/internal/store"
)

// appContext wires the configured store, blob storage and archive codec for
// one command invocation.
type appContext struct {
	cfg   *config.Config
	store store.Store
	blobs *blob.Store
	codec compress.Codec
}

func openAppContext() (*appContext, error) {
	cfg := config.LoadConfig()
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	st := store.NewGormStore(db)
	blobs, err := blob.NewStore(cfg.BlobDir, st)
	if err != nil {
		return nil, err
	}
	codec, err := compress.ForName(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &appContext{
		cfg:   cfg,
		store: st,
		blobs: blobs,
		codec: codec,
	}, nil
}
