package journal

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	jnl "github.com/tidestore/tidestore/journal"
	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/scanner"
	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils"
	"github.com/tidestore/tidestore/utils/log"
)

const (
	journalUsage     = "journal"
	journalShortDesc = "Inspects and replays the segmented journal"
	journalLongDesc  = "Operator tooling over a journal segment directory: dump segment and " +
		"record headers, or dry-run a replay printing every persisted delta."

	rootDirDesc     = "Path to the journal segment directory"
	segmentSizeDesc = "Segment size the journal was written with"
	blockSizeDesc   = "Block size the journal was written with"
	configDesc      = "Path to a tidestore YAML configuration file"
)

var (
	// Cmd is the journal command.
	Cmd = &cobra.Command{
		Use:     journalUsage,
		Short:   journalShortDesc,
		Long:    journalLongDesc,
		Example: "tidestore tool journal inspect --dir /data/journal",
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Dump segment headers and record headers",
		RunE:  executeInspect,
	}

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Dry-run replay printing every persisted delta",
		RunE:  executeReplay,
	}

	rootDir     string
	segmentSize string
	blockSize   string
	configFile  string
)

func init() {
	for _, c := range []*cobra.Command{inspectCmd, replayCmd} {
		c.Flags().StringVarP(&rootDir, "dir", "d", "", rootDirDesc)
		c.Flags().StringVar(&segmentSize, "segment-size", "64M", segmentSizeDesc)
		c.Flags().StringVar(&blockSize, "block-size", "4K", blockSizeDesc)
		c.Flags().StringVarP(&configFile, "config", "c", "", configDesc)
	}
	Cmd.AddCommand(inspectCmd)
	Cmd.AddCommand(replayCmd)
}

func openManager() (*segment.FileManager, error) {
	if configFile != "" {
		data, err := ioutil.ReadFile(filepath.Clean(configFile))
		if err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", configFile, err)
		}
		if err := utils.InstanceConfig.Parse(data); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", configFile, err)
		}
		cfg := utils.InstanceConfig
		return segment.NewFileManager(cfg.RootDirectory, cfg.SegmentSize, cfg.BlockSize)
	}
	if rootDir == "" {
		return nil, fmt.Errorf("either --dir or --config is required")
	}
	segSize, err := bytefmt.ToBytes(segmentSize)
	if err != nil {
		return nil, fmt.Errorf("invalid --segment-size %q: %w", segmentSize, err)
	}
	blkSize, err := bytefmt.ToBytes(blockSize)
	if err != nil {
		return nil, fmt.Errorf("invalid --block-size %q: %w", blockSize, err)
	}
	return segment.NewFileManager(filepath.Clean(rootDir), int64(segSize), int64(blkSize))
}

func readSegments(mgr *segment.FileManager, scn *scanner.Scanner) ([]jnl.ReplaySegment, error) {
	ids, err := mgr.ListSegments()
	if err != nil {
		return nil, err
	}
	var segments []jnl.ReplaySegment
	for _, id := range ids {
		hdr, err := scn.ReadSegmentHeader(id)
		if err != nil {
			log.Warn("skipping segment %d: %v", id, err)
			continue
		}
		segments = append(segments, jnl.ReplaySegment{ID: id, Header: hdr})
	}
	return segments, nil
}

func executeInspect(cmd *cobra.Command, args []string) error {
	log.SetLevel(log.INFO)
	mgr, err := openManager()
	if err != nil {
		return err
	}
	defer mgr.Close()
	scn := scanner.NewScanner(mgr)

	segments, err := readSegments(mgr, scn)
	if err != nil {
		return err
	}
	for _, rs := range segments {
		fmt.Printf("segment %d: seq=%d nonce=%d tail=%s\n",
			rs.ID, rs.Header.Seq, rs.Header.Nonce, rs.Header.Tail)
		err := scn.ScanSegment(rs.ID, rs.Header,
			func(off int64, h record.Header, mdata, data []byte) error {
				fmt.Printf("  record @%d: md=%s data=%s deltas=%d extents=%d committed_to=%d\n",
					off, bytefmt.ByteSize(uint64(h.Mdlength)), bytefmt.ByteSize(uint64(h.Dlength)),
					h.DeltasCount, h.ExtentsCount, h.CommittedTo)
				return nil
			})
		if err != nil {
			log.Warn("segment %d scan stopped: %v", rs.ID, err)
		}
	}
	return nil
}

func executeReplay(cmd *cobra.Command, args []string) error {
	log.SetLevel(log.INFO)
	mgr, err := openManager()
	if err != nil {
		return err
	}
	defer mgr.Close()
	scn := scanner.NewScanner(mgr)

	segments, err := readSegments(mgr, scn)
	if err != nil {
		return err
	}
	j := jnl.NewJournal(mgr, scn, jnl.DefaultConfig())
	var count int
	err = j.Replay(segments, func(seq segment.JournalSeq, base segment.Paddr, delta []byte) error {
		fmt.Printf("%s base=%s delta=%s\n", seq, base, bytefmt.ByteSize(uint64(len(delta))))
		count++
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("replayed %d deltas", count)
	return nil
}
