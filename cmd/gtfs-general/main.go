package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	gtfsgeneral "github.com/MichaelsJP/gtfs-general"
	"github.com/spf13/pflag"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    gtfs-general --extract-bbox <lon_min,lat_min,lon_max,lat_max> <timetable.zip>\n" +
		"    gtfs-general --extract-date --start-date 20240101 --end-date 20240131 <timetable.zip>\n" +
		"    gtfs-general --clip-feature <feature_geojson.json> <timetable.zip>\n" +
		"    gtfs-general --metadata <timetable.zip>")
	os.Exit(1)
}

func main() {
	bboxArg := pflag.StringP("extract-bbox", "b", "", "Extract the subset inside a bounding box")
	dateMode := pflag.BoolP("extract-date", "d", false, "Extract the subset active in a date range")
	clipFeaturePath := pflag.String("clip-feature", "", "Extract the subset inside the GeoJSON feature in the file specified")
	metadataMode := pflag.BoolP("metadata", "m", false, "Print the service range and row counts")

	startArg := pflag.String("start-date", "", "First date of the range (YYYYMMDD)")
	endArg := pflag.String("end-date", "", "Last date of the range (YYYYMMDD)")
	output := pflag.StringP("out", "o", "", "Path to write output to (directory, or .zip)")
	dbPath := pflag.String("db", "", "Also write the result to a SQLite database at this path")
	cores := pflag.Int("cores", 0, "Worker count for filtering (default: all cores)")

	pflag.Parse()

	primaryCount := 0
	if *bboxArg != "" {
		primaryCount++
	}
	if *dateMode {
		primaryCount++
	}
	if *clipFeaturePath != "" {
		primaryCount++
	}
	if *metadataMode {
		primaryCount++
	}
	if primaryCount != 1 || pflag.NArg() != 1 {
		usageAndDie()
	}
	inputPath := pflag.Arg(0)

	cfg, err := gtfsgeneral.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if *cores == 0 {
		*cores = cfg.Cores
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *bboxArg, *dateMode, *clipFeaturePath, *metadataMode,
		*startArg, *endArg, inputPath, *output, *dbPath, *cores); err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("All done")
}

func run(ctx context.Context, bboxArg string, dateMode bool, clipFeaturePath string, metadataMode bool,
	startArg, endArg, inputPath, output, dbPath string, cores int) error {

	feed, err := gtfsgeneral.ReadFeed(inputPath)
	if err != nil {
		return err
	}

	if metadataMode {
		meta, err := gtfsgeneral.FeedMetadata(feed)
		if err != nil {
			return err
		}
		fmt.Print(meta.Render())
		return nil
	}

	opts := gtfsgeneral.FilterOptions{Cores: cores}

	var subset *gtfsgeneral.Feed
	var suffix string
	switch {
	case bboxArg != "":
		bbox, err := gtfsgeneral.ParseBbox(bboxArg)
		if err != nil {
			return err
		}
		subset, _, err = gtfsgeneral.ExtractByBbox(ctx, feed, bbox, opts)
		if err != nil {
			return err
		}
		suffix = "_bbox"

	case dateMode:
		start, err := gtfsgeneral.ParseDate(startArg)
		if err != nil {
			return fmt.Errorf("start-date: %w", err)
		}
		end, err := gtfsgeneral.ParseDate(endArg)
		if err != nil {
			return fmt.Errorf("end-date: %w", err)
		}
		subset, _, err = gtfsgeneral.ExtractByDate(ctx, feed, start, end, opts)
		if err != nil {
			return err
		}
		suffix = "_" + startArg + "_" + endArg

	case clipFeaturePath != "":
		featureJSON, err := os.ReadFile(clipFeaturePath)
		if err != nil {
			return err
		}
		feature, err := gtfsgeneral.ParseClipFeature(string(featureJSON))
		if err != nil {
			return err
		}
		subset, _, err = gtfsgeneral.ExtractByFeature(ctx, feed, feature, opts)
		if err != nil {
			return err
		}
		suffix = "_" + trimFileExt(path.Base(clipFeaturePath))
	}

	outputPath := outputPathOrDefault(inputPath, output, suffix+".zip")
	if err := gtfsgeneral.WriteFeed(subset, outputPath); err != nil {
		return err
	}
	if dbPath != "" {
		if err := gtfsgeneral.WriteSQLite(subset, dbPath); err != nil {
			return err
		}
	}
	return nil
}

func outputPathOrDefault(inputPath string, outputPath string, newSuffix string) string {
	if outputPath != "" {
		return outputPath
	}
	inputPath = path.Clean(inputPath)
	return trimFileExt(path.Base(inputPath)) + newSuffix
}

func trimFileExt(name string) string {
	i := strings.LastIndex(name, ".")
	if i == -1 {
		return name
	} else {
		return name[:i]
	}
}
