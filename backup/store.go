// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/errdef"
)

// Artifact and annotation identifiers for registry archives.
const (
	// ArtifactTypeArchive identifies registry archive manifests.
	ArtifactTypeArchive = "dev.stacklok.skillctl.archive.v1"

	// AnnotationSkills lists the archived skill names as a JSON array.
	AnnotationSkills = "dev.stacklok.skillctl.skills"
)

// archiveStore is an OCI image layout holding registry archives.
type archiveStore struct {
	root  string
	inner *oci.Store
}

func openArchiveStore(ctx context.Context, root string) (*archiveStore, error) {
	inner, err := oci.NewWithContext(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("opening archive store at %s: %w", root, err)
	}
	return &archiveStore{root: root, inner: inner}, nil
}

// putBlob stores content and returns its descriptor.
func (s *archiveStore) putBlob(ctx context.Context, mediaType string, content []byte) (ocispec.Descriptor, error) {
	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(content),
		Size:      int64(len(content)),
	}
	if err := s.inner.Push(ctx, desc, bytes.NewReader(content)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return ocispec.Descriptor{}, fmt.Errorf("writing blob: %w", err)
	}
	return desc, nil
}

// putArchive stores layer as a single-layer artifact and tags it.
func (s *archiveStore) putArchive(ctx context.Context, tag string, layer []byte, annotations map[string]string) (digest.Digest, error) {
	config := ocispec.DescriptorEmptyJSON
	if _, err := s.putBlob(ctx, config.MediaType, config.Data); err != nil {
		return "", err
	}
	layerDesc, err := s.putBlob(ctx, ocispec.MediaTypeImageLayerGzip, layer)
	if err != nil {
		return "", err
	}

	man := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactTypeArchive,
		Config: ocispec.Descriptor{
			MediaType: config.MediaType,
			Digest:    config.Digest,
			Size:      config.Size,
		},
		Layers:      []ocispec.Descriptor{layerDesc},
		Annotations: annotations,
	}
	data, err := json.Marshal(man)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	manDesc, err := s.putBlob(ctx, ocispec.MediaTypeImageManifest, data)
	if err != nil {
		return "", err
	}
	if err := s.inner.Tag(ctx, manDesc, tag); err != nil {
		return "", fmt.Errorf("tagging %s: %w", tag, err)
	}
	return manDesc.Digest, nil
}

// manifest resolves tag to its artifact manifest.
func (s *archiveStore) manifest(ctx context.Context, tag string) (*ocispec.Manifest, error) {
	desc, err := s.inner.Resolve(ctx, tag)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return nil, fmt.Errorf("archive %s: %w", tag, ErrNoSnapshot)
		}
		return nil, fmt.Errorf("resolving %s: %w", tag, err)
	}
	data, err := s.fetchContent(ctx, desc.Digest)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", desc.Digest, err)
	}
	var man ocispec.Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", desc.Digest, err)
	}
	if man.ArtifactType != ArtifactTypeArchive || len(man.Layers) != 1 {
		return nil, fmt.Errorf("manifest %s is not a registry archive", desc.Digest)
	}
	return &man, nil
}

// layer returns the archive bytes tagged tag.
func (s *archiveStore) layer(ctx context.Context, tag string) ([]byte, error) {
	man, err := s.manifest(ctx, tag)
	if err != nil {
		return nil, err
	}
	data, err := s.fetchContent(ctx, man.Layers[0].Digest)
	if err != nil {
		return nil, fmt.Errorf("reading archive layer: %w", err)
	}
	return data, nil
}

func (s *archiveStore) hasTag(ctx context.Context, tag string) bool {
	_, err := s.inner.Resolve(ctx, tag)
	return err == nil
}

// tags returns all tags in lexical order.
func (s *archiveStore) tags(ctx context.Context) ([]string, error) {
	var tags []string
	if err := s.inner.Tags(ctx, "", func(t []string) error {
		tags = append(tags, t...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	slices.Sort(tags)
	return tags, nil
}

// remove untags every tag, deletes manifests no other tag references and
// garbage-collects unreferenced blobs.
func (s *archiveStore) remove(ctx context.Context, tags ...string) error {
	var dropped []ocispec.Descriptor
	for _, tag := range tags {
		desc, err := s.inner.Resolve(ctx, tag)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", tag, err)
		}
		if err := s.inner.Untag(ctx, tag); err != nil {
			return fmt.Errorf("untagging %s: %w", tag, err)
		}
		dropped = append(dropped, desc)
	}

	live := map[digest.Digest]bool{}
	remaining, err := s.tags(ctx)
	if err != nil {
		return err
	}
	for _, tag := range remaining {
		desc, err := s.inner.Resolve(ctx, tag)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", tag, err)
		}
		live[desc.Digest] = true
	}

	// Untagged manifests stay in the index under their digest until deleted.
	for _, desc := range dropped {
		if live[desc.Digest] {
			continue
		}
		live[desc.Digest] = true
		if err := s.inner.Delete(ctx, desc); err != nil && !errors.Is(err, errdef.ErrNotFound) {
			return fmt.Errorf("deleting manifest %s: %w", desc.Digest, err)
		}
	}
	if err := s.inner.GC(ctx); err != nil {
		return fmt.Errorf("collecting unreferenced blobs: %w", err)
	}
	return nil
}

// fetchContent retrieves raw content by digest from the underlying store.
func (s *archiveStore) fetchContent(ctx context.Context, d digest.Digest) ([]byte, error) {
	// oci.Store's Fetch only uses the Digest field to locate blobs in blobs/<algo>/<hex>.
	rc, err := s.inner.Fetch(ctx, ocispec.Descriptor{Digest: d})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
