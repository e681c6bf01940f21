// eraview-publish pushes a locally built eraview image tarball to a container
// registry, or inspects a tag that was already pushed.
//
// Usage:
//
//	eraview-publish -config config.yaml push image.tar
//	eraview-publish -config config.yaml inspect
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arcfield/eraview/internal/log"
	"github.com/arcfield/eraview/pkg/config"
	"github.com/arcfield/eraview/pkg/publish"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file with a registry section")
	repository := flag.String("repository", "", "Registry repository, overrides the config file")
	tag := flag.String("tag", "", "Image tag, overrides the config file (default: latest)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug, ""); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	repo, imgTag, err := resolveTarget(*cfgFile, *repository, *tag)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	pub, err := publish.New(repo, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch flag.Arg(0) {
	case "push":
		if flag.NArg() != 2 {
			usage()
		}
		digest, err := pub.Push(ctx, flag.Arg(1), imgTag)
		if err != nil {
			log.Errorf("push failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("%s:%s\t%s\n", repo, imgTag, digest)
	case "inspect":
		info, err := pub.Inspect(ctx, imgTag)
		if err != nil {
			log.Errorf("inspect failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("reference: %s\n", info.Reference)
		fmt.Printf("digest:    %s\n", info.Digest)
		fmt.Printf("layers:    %d\n", info.Layers)
		if info.Port != "" {
			fmt.Printf("port:      %s\n", info.Port)
		}
		for _, e := range info.Env {
			fmt.Printf("env:       %s\n", e)
		}
	default:
		usage()
	}
}

// resolveTarget merges flags over the config file's registry section.
func resolveTarget(cfgFile, repoFlag, tagFlag string) (repo, tag string, err error) {
	repo, tag = repoFlag, tagFlag

	if repo == "" || tag == "" {
		filename, _ := filepath.Abs(cfgFile)
		cfgData, cfgErr := config.NewYAMLProvider(filename).LoadConfig()
		if cfgErr == nil && cfgData.Registry != nil {
			if repo == "" {
				repo = cfgData.Registry.Repository
			}
			if tag == "" {
				tag = cfgData.Registry.Tag
			}
		} else if repo == "" {
			return "", "", fmt.Errorf("no -repository flag and no registry section in %s", cfgFile)
		}
	}
	if tag == "" {
		tag = "latest"
	}
	return repo, tag, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: eraview-publish [-config file] [-repository repo] [-tag tag] push <image.tar> | inspect\n")
	os.Exit(2)
}
