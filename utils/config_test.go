package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore/utils"
)

func TestConfigParse(t *testing.T) {
	data := []byte(`
root_directory: /data/journal
segment_size: 128M
block_size: 4K
io_depth_limit: 8
batch_capacity: 32
batch_flush_size: 1M
log_level: warning
`)
	var cfg utils.TidesConfig
	require.NoError(t, cfg.Parse(data))
	assert.Equal(t, "/data/journal", cfg.RootDirectory)
	assert.Equal(t, int64(128*1024*1024), cfg.SegmentSize)
	assert.Equal(t, int64(4096), cfg.BlockSize)
	assert.Equal(t, 8, cfg.IODepthLimit)
	assert.Equal(t, 32, cfg.BatchCapacity)
	assert.Equal(t, int64(1024*1024), cfg.BatchFlushSize)
}

func TestConfigDefaults(t *testing.T) {
	var cfg utils.TidesConfig
	require.NoError(t, cfg.Parse([]byte("root_directory: /data/journal\n")))
	assert.Equal(t, int64(utils.DefaultSegmentSize), cfg.SegmentSize)
	assert.Equal(t, int64(utils.DefaultBlockSize), cfg.BlockSize)
	assert.Equal(t, utils.DefaultIODepthLimit, cfg.IODepthLimit)
	assert.Equal(t, utils.DefaultBatchCapacity, cfg.BatchCapacity)
	assert.Equal(t, int64(utils.DefaultBatchFlushSize), cfg.BatchFlushSize)
}

func TestConfigRejectsBadInput(t *testing.T) {
	var cfg utils.TidesConfig
	assert.Error(t, cfg.Parse([]byte("segment_size: 64M\n")))
	assert.Error(t, cfg.Parse([]byte("root_directory: /x\nsegment_size: potato\n")))
	assert.Error(t, cfg.Parse([]byte("root_directory: /x\nsegment_size: 10K\nblock_size: 4K\n")))
	assert.Error(t, cfg.Parse([]byte("root_directory: /x\nlog_level: shouty\n")))
}
