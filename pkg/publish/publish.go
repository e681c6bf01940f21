// Package publish pushes locally built OCI image tarballs to a container
// registry and verifies what landed there. The registry wire protocol and
// credential handling are delegated to go-containerregistry; this package only
// sequences load, tag, push, and inspect.
package publish

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"go.uber.org/zap"
)

// Publisher pushes and inspects images against one repository.
type Publisher struct {
	repository string
	logger     *zap.SugaredLogger
}

// New creates a publisher for a repository like "quay.io/example/eraview".
func New(repository string, logger *zap.SugaredLogger) (*Publisher, error) {
	if repository == "" {
		return nil, fmt.Errorf("registry repository is required")
	}
	if _, err := name.NewRepository(repository); err != nil {
		return nil, fmt.Errorf("invalid repository %q: %v", repository, err)
	}
	return &Publisher{repository: repository, logger: logger}, nil
}

// Push loads an image from a local tarball (as produced by the container
// engine's save/export), retags it, and pushes it. Returns the digest of the
// pushed image. Authentication uses the ambient credential helpers, the same
// ones the engine CLI's login stores.
func (p *Publisher) Push(ctx context.Context, tarballPath, tag string) (string, error) {
	img, err := tarball.ImageFromPath(tarballPath, nil)
	if err != nil {
		return "", fmt.Errorf("loading image tarball %s: %v", tarballPath, err)
	}

	ref, err := name.NewTag(fmt.Sprintf("%s:%s", p.repository, tag))
	if err != nil {
		return "", fmt.Errorf("building tag %s:%s: %v", p.repository, tag, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("computing image digest: %v", err)
	}

	p.logger.Infof("pushing %s (%s)...", ref.Name(), digest)
	if err := remote.Write(ref, img,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	); err != nil {
		return "", fmt.Errorf("pushing %s: %v", ref.Name(), err)
	}
	p.logger.Infof("pushed %s", ref.Name())

	return digest.String(), nil
}

// ImageInfo describes a published image.
type ImageInfo struct {
	Reference string
	Digest    string
	Layers    int
	Port      string
	Env       []string
}

// Inspect pulls the manifest and config of a published tag and returns the
// details a cookbook reader checks after a push: digest, layer count, the
// exposed port, and environment.
func (p *Publisher) Inspect(ctx context.Context, tag string) (*ImageInfo, error) {
	ref, err := name.NewTag(fmt.Sprintf("%s:%s", p.repository, tag))
	if err != nil {
		return nil, fmt.Errorf("building tag %s:%s: %v", p.repository, tag, err)
	}

	desc, err := remote.Get(ref,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %v", ref.Name(), err)
	}

	img, err := desc.Image()
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %v", ref.Name(), err)
	}

	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("computing digest of %s: %v", ref.Name(), err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("listing layers of %s: %v", ref.Name(), err)
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("reading config of %s: %v", ref.Name(), err)
	}

	info := &ImageInfo{
		Reference: ref.Name(),
		Digest:    digest.String(),
		Layers:    len(layers),
		Env:       cfg.Config.Env,
	}
	for port := range cfg.Config.ExposedPorts {
		info.Port = port
		break
	}
	return info, nil
}
