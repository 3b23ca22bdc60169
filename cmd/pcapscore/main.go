package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nshruti113/packet-analysis-service/internal/analysis"
	"github.com/nshruti113/packet-analysis-service/internal/config"
	"github.com/nshruti113/packet-analysis-service/internal/detection"
	"github.com/nshruti113/packet-analysis-service/internal/models"
	"github.com/nshruti113/packet-analysis-service/internal/pcapio"
	"github.com/nshruti113/packet-analysis-service/internal/version"
)

// chunkResult is one line of output.
type chunkResult struct {
	Chunk   int                  `json:"chunk"`
	Offset  int                  `json:"offset"`
	Packets int                  `json:"packets"`
	Result  models.BatchResponse `json:"result"`
	Attacks []models.Attack      `json:"attacks,omitempty"`
}

type scorer struct {
	svc       *analysis.Service
	detector  *detection.Detector
	chunkSize int
	alerts    bool
	out       *json.Encoder
}

func (s *scorer) flush(chunk, offset int, packets []models.Packet) error {
	res, err := s.svc.AnalyzeBatch(packets)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", chunk, err)
	}
	line := chunkResult{Chunk: chunk, Offset: offset, Packets: len(packets), Result: res}
	if s.alerts {
		line.Attacks = s.detector.AnalyzeTrafficAt(packets, res, captureTime(packets))
	}
	return s.out.Encode(line)
}

// captureTime is the timestamp of the newest packet in the chunk, falling back
// to the wall clock when no packet carries a parseable one.
func captureTime(packets []models.Packet) time.Time {
	if m := detection.CalculateMetrics(packets); m.EndTime != nil {
		return *m.EndTime
	}
	return time.Now()
}

// score reads a capture from r and writes one JSON line per chunk.
func (s *scorer) score(r io.Reader) (int, error) {
	reader, err := pcapio.NewReader(r)
	if err != nil {
		return 0, err
	}

	var (
		chunk  int
		offset int
		total  int
		buf    = make([]models.Packet, 0, s.chunkSize)
	)
	for {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		buf = append(buf, p)
		total++
		if len(buf) == s.chunkSize {
			if err := s.flush(chunk, offset, buf); err != nil {
				return total, err
			}
			chunk++
			offset += len(buf)
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if err := s.flush(chunk, offset, buf); err != nil {
			return total, err
		}
	}
	return total, nil
}

func main() {
	var (
		configPath string
		chunkSize  int
		alerts     bool
		dedup      time.Duration
		verbose    bool
	)

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.JSONFormatter{})

	rootCmd := &cobra.Command{
		Use:   "pcapscore <capture.pcap>",
		Short: "Score a packet capture with the anomaly detector and attack classifier",
		Long: `pcapscore decodes a pcap or pcapng file, splits it into fixed-size
batches and runs each batch through the same analysis pipeline the service
exposes at /api/predict/batch. Results are written to stdout as JSON lines.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			if chunkSize <= 0 {
				return fmt.Errorf("--chunk must be positive, got %d", chunkSize)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc := analysis.New(detection.NewAnomalyDetector(detection.IsolationForestConfig{
				Trees:         cfg.Detector.Trees,
				MaxSamples:    cfg.Detector.MaxSamples,
				Contamination: cfg.Detector.Contamination,
				Seed:          cfg.Detector.Seed,
			}), log)
			detector := detection.NewDetector(detection.Thresholds{
				DDoSLabelCount:     cfg.Alerts.DDoSLabelThreshold,
				PortScanLabelCount: cfg.Alerts.PortScanLabelThreshold,
				DistinctPorts:      cfg.Alerts.PortScanDistinctPorts,
				SYNFloodPackets:    cfg.Alerts.SYNFloodThreshold,
				PacketsPerSecond:   cfg.Alerts.RateThreshold,
				DedupWindow:        dedup,
			})

			s := &scorer{svc: svc, detector: detector, chunkSize: chunkSize, alerts: alerts, out: json.NewEncoder(cmd.OutOrStdout())}
			total, err := s.score(f)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"file": args[0], "packets": total}).Info("Capture scored")
			return nil
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to config file (YAML)")
	rootCmd.Flags().IntVarP(&chunkSize, "chunk", "n", 100, "Packets per analysed batch")
	rootCmd.Flags().BoolVar(&alerts, "alerts", false, "Also run the batch alert rules on every chunk")
	rootCmd.Flags().DurationVar(&dedup, "dedup", 0, "Suppress repeats of an attack type within this much capture time (0 reports every chunk)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pcapscore version %s\n", version.Version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("pcapscore failed")
		os.Exit(1)
	}
}
