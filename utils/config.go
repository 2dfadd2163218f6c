package utils

import (
	"errors"
	"fmt"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v2"

	"github.com/tidestore/tidestore/utils/log"
)

var InstanceConfig TidesConfig

const (
	DefaultSegmentSize    = 64 * 1024 * 1024
	DefaultBlockSize      = 4 * 1024
	DefaultIODepthLimit   = 4
	DefaultBatchCapacity  = 16
	DefaultBatchFlushSize = 64 * 1024 // one device stripe
)

type TidesConfig struct {
	RootDirectory  string
	SegmentSize    int64
	BlockSize      int64
	IODepthLimit   int
	BatchCapacity  int
	BatchFlushSize int64
}

// Parse loads a YAML configuration. Sizes accept human-readable byte
// strings ("64M", "4K").
func (m *TidesConfig) Parse(data []byte) error {
	var (
		err error
		aux struct {
			RootDirectory  string `yaml:"root_directory"`
			SegmentSize    string `yaml:"segment_size"`
			BlockSize      string `yaml:"block_size"`
			IODepthLimit   int    `yaml:"io_depth_limit"`
			BatchCapacity  int    `yaml:"batch_capacity"`
			BatchFlushSize string `yaml:"batch_flush_size"`
			LogLevel       string `yaml:"log_level"`
		}
	)

	if err = yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.RootDirectory == "" {
		log.Error("Invalid root directory.")
		return errors.New("invalid root directory")
	}
	m.RootDirectory = aux.RootDirectory

	if m.SegmentSize, err = parseSize(aux.SegmentSize, DefaultSegmentSize); err != nil {
		return fmt.Errorf("invalid segment_size %q: %w", aux.SegmentSize, err)
	}
	if m.BlockSize, err = parseSize(aux.BlockSize, DefaultBlockSize); err != nil {
		return fmt.Errorf("invalid block_size %q: %w", aux.BlockSize, err)
	}
	if m.BatchFlushSize, err = parseSize(aux.BatchFlushSize, DefaultBatchFlushSize); err != nil {
		return fmt.Errorf("invalid batch_flush_size %q: %w", aux.BatchFlushSize, err)
	}

	if m.SegmentSize%m.BlockSize != 0 {
		return fmt.Errorf("segment_size %d is not a multiple of block_size %d", m.SegmentSize, m.BlockSize)
	}

	m.IODepthLimit = aux.IODepthLimit
	if m.IODepthLimit == 0 {
		m.IODepthLimit = DefaultIODepthLimit
	}
	m.BatchCapacity = aux.BatchCapacity
	if m.BatchCapacity == 0 {
		m.BatchCapacity = DefaultBatchCapacity
	}

	switch strings.ToLower(aux.LogLevel) {
	case "error":
		log.SetLevel(log.ERROR)
	case "warning":
		log.SetLevel(log.WARNING)
	case "debug":
		log.SetLevel(log.DEBUG)
	case "info", "":
		log.SetLevel(log.INFO)
	default:
		return fmt.Errorf("invalid log_level %q", aux.LogLevel)
	}

	return nil
}

func parseSize(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	n, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
