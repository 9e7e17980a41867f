// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"os"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/staranto/shellcache/internal/config"
	"github.com/staranto/shellcache/internal/store/disk"
)

func init() {
	cfg, _ = config.Load("")
}

var cfg config.Type

// NewGlobalFlags returns the presentation flags of the listing commands.
// params[0] is the command namespace.
func NewGlobalFlags(params ...string) (flags []cli.Flag) {
	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "attrs",
			Aliases: []string{"a"},
			Usage:   "comma-separated list of key[:title[:transform]] column specs",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"attrs", altsrc.StringSourcer(cfg.Source)),
			),
		},
		&cli.BoolWithInverseFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"color", altsrc.StringSourcer(cfg.Source)),
				yaml.YAML("color", altsrc.StringSourcer(cfg.Source)),
			),
			Value: isTerminal(),
		},
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "comma-separated list of filters to apply to results",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format (text, json, yaml)",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"output", altsrc.StringSourcer(cfg.Source)),
				yaml.YAML("output", altsrc.StringSourcer(cfg.Source)),
			),
			Value: "text",
			Validator: func(value string) error {
				return FlagValidators(value, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of columns to sort the results by",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"sort", altsrc.StringSourcer(cfg.Source)),
			),
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"titles", altsrc.StringSourcer(cfg.Source)),
				yaml.YAML("titles", altsrc.StringSourcer(cfg.Source)),
			),
			Value: true,
		},
	}

	return
}

// NewStoreFlags returns the flags selecting and locating the cache storage.
// Each reads SHELLCACHE_STORE_* and then the namespaced and global store.*
// config keys.
func NewStoreFlags(ns string) []cli.Flag {
	return []cli.Flag{
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.kind", &cli.StringFlag{
			Name:    "store",
			Usage:   "cache storage (memory, disk, sqlite, s3)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_STORE")),
			Value:   "disk",
			Validator: func(value string) error {
				return FlagValidators(value, StoreKindValidator)
			},
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.dir", &cli.StringFlag{
			Name:    "store-dir",
			Usage:   "directory of the disk store",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_CACHE_DIR")),
			Value:   defaultStoreDir(),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.path", &cli.StringFlag{
			Name:    "store-path",
			Usage:   "database file of the sqlite store",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_STORE_PATH")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.bucket", &cli.StringFlag{
			Name:    "bucket",
			Usage:   "bucket of the s3 store",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_STORE_BUCKET")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.prefix", &cli.StringFlag{
			Name:    "prefix",
			Usage:   "key prefix of the s3 store",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_STORE_PREFIX")),
			Value:   "shellcache",
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.region", &cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region of the s3 store",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AWS_REGION")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "store.endpoint", &cli.StringFlag{
			Name:    "endpoint",
			Usage:   "custom S3 endpoint, e.g. a local MinIO",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_STORE_ENDPOINT")),
		}),
	}
}

// NewGenerationFlag constructs the flag naming the current generation.
func NewGenerationFlag(ns string) *cli.StringFlag {
	return NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "generation", &cli.StringFlag{
		Name:    "generation",
		Aliases: []string{"g"},
		Usage:   "current cache generation, e.g. freqshift-v3",
		Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_GENERATION")),
		Validator: func(value string) error {
			return FlagValidators(value, JammedFlagValidator, GenerationValidator)
		},
	})
}

// NewOriginFlag constructs the flag naming the controlling origin.
func NewOriginFlag(ns string) *cli.StringFlag {
	return NameSpacedValueChainFlagFromConfigFile(ns, cfg.Source, "origin", &cli.StringFlag{
		Name:    "origin",
		Usage:   "controlling origin, e.g. https://freqshift.example.com",
		Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_ORIGIN")),
		Value:   "http://localhost:5000",
		Validator: func(value string) error {
			return FlagValidators(value, JammedFlagValidator, OriginValidator)
		},
	})
}

// NewWorkerFlags returns the flags that shape a worker. The shell and bypass
// lists fall back to the shell and bypass config keys.
func NewWorkerFlags(ns string) []cli.Flag {
	return []cli.Flag{
		NewGenerationFlag(ns),
		NewOriginFlag(ns),
		&cli.StringSliceFlag{
			Name:    "shell",
			Usage:   "app shell asset path, repeatable",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_SHELL")),
		},
		&cli.StringSliceFlag{
			Name:    "bypass",
			Usage:   "extra path prefix that always goes to the network, repeatable (/result/ and /download/ always do)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_BYPASS")),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "network timeout per request",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_TIMEOUT")),
		},
	}
}

// NameSpacedValueChainFlagFromConfigFile adds namespaced and global config file
// sources for key to the given flag's Sources chain.
func NameSpacedValueChainFlagFromConfigFile(ns string, path string, key string, flag *cli.StringFlag) *cli.StringFlag {
	if ns != "" {
		src := yaml.YAML(ns+"."+key, altsrc.StringSourcer(path))
		flag.Sources.Chain = append(flag.Sources.Chain, src)
	}

	src := yaml.YAML(key, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	return flag
}

func defaultStoreDir() string {
	dir, _ := disk.Dir()
	return dir
}

// isTerminal decides the color default.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
