// avimjpeg converts between still images and AVI MJPEG chunk payloads.
//
// Usage:
//
//	avimjpeg encode [flags] <image> <payload>
//	avimjpeg decode [flags] <payload> <image>
//	avimjpeg inspect <payload> [<payload> ...]
//
// Images are read as PNG, JPEG or BMP and written as PNG or BMP, chosen by extension.
// Stream parameters come from a YAML file (-config) and can be overridden with flags.
//
// Exit codes:
//
//	0: Success
//	1: Conversion failed
//	2: Usage error
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"

	"github.com/gen2brain/avimjpeg"
	"github.com/gen2brain/avimjpeg/internal/config"
)

const version = "1.0.0"

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error

	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "encode":
		err = runEncode(args)
	case "decode":
		err = runDecode(args)
	case "inspect":
		err = runInspect(os.Stdout, args)
	case "-h", "--help", "help":
		usage(os.Stdout)

		return
	case "--version", "version":
		fmt.Println("avimjpeg", version)

		return
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err != nil {
		slog.Error("avimjpeg failed", "error", err)

		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}

		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  avimjpeg encode [-config file] [-quality n] [-interlaced] [-field-order even|odd] [-omit-tables] <image> <payload>")
	fmt.Fprintln(w, "  avimjpeg decode [-config file] [-width n] [-height n] [-field-order even|odd] <payload> <image>")
	fmt.Fprintln(w, "  avimjpeg inspect <payload> [<payload> ...]")
}

// settings are the flags shared by encode and decode.
type settings struct {
	configPath string
	debug      bool
	width      int
	height     int
	quality    int
	interlaced bool
	fieldOrder string
	omitTables bool
}

func (s *settings) register(fs *flag.FlagSet) {
	fs.StringVar(&s.configPath, "config", "", "Path to YAML configuration file")
	fs.BoolVar(&s.debug, "debug", false, "Enable debug logging")
	fs.IntVar(&s.width, "width", 0, "Frame width (decode)")
	fs.IntVar(&s.height, "height", 0, "Frame height (decode)")
	fs.IntVar(&s.quality, "quality", 0, "JPEG quality 0-100 (encode)")
	fs.BoolVar(&s.interlaced, "interlaced", false, "Encode two fields per frame")
	fs.StringVar(&s.fieldOrder, "field-order", "", "Field stored first: even or odd")
	fs.BoolVar(&s.omitTables, "omit-tables", false, "Leave the standard Huffman tables out")
}

// load reads the configuration file, applies the flags that were set and sets up logging.
func (s *settings) load(fs *flag.FlagSet) (*config.Config, *slog.Logger, error) {
	cfg := config.Default()

	if s.configPath != "" {
		var err error
		if cfg, err = config.Load(s.configPath); err != nil {
			return nil, nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Stream.Width = s.width
		case "height":
			cfg.Stream.Height = s.height
		case "quality":
			cfg.Stream.Quality = s.quality
		case "interlaced":
			cfg.Stream.Interlaced = s.interlaced
		case "field-order":
			cfg.Stream.FieldOrder = s.fieldOrder
		case "omit-tables":
			cfg.Codec.OmitHuffmanTables = s.omitTables
		case "debug":
			if s.debug {
				cfg.Log.Level = "debug"
			}
		}
	})

	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func parse(name string, args []string, nargs int) (*flag.FlagSet, *settings, error) {
	s := &settings{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	s.register(fs)

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	if fs.NArg() != nargs {
		return nil, nil, fmt.Errorf("%w: %s takes %d arguments, got %d", errUsage, name, nargs, fs.NArg())
	}

	return fs, s, nil
}

func runEncode(args []string) error {
	fs, s, err := parse("encode", args, 2)
	if err != nil {
		return err
	}

	cfg, logger, err := s.load(fs)
	if err != nil {
		return err
	}

	img, err := readImage(fs.Arg(0))
	if err != nil {
		return err
	}

	frame := avimjpeg.NewFrameFromImage(img)

	if cfg.Stream.Width == 0 && cfg.Stream.Height == 0 {
		cfg.Stream.Width, cfg.Stream.Height = frame.Width, frame.Height
	}

	desc := cfg.Descriptor()
	codec := avimjpeg.NewCodec(cfg.Options(logger))

	dst := make([]byte, avimjpeg.MaxEncodedSize(desc))

	n, err := codec.EncodeFrame(dst, frame, desc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", fs.Arg(0), err)
	}

	logger.Info("encoded frame", "width", desc.Width, "height", desc.Height, "interlaced", desc.Interlaced,
		"quality", desc.Quality, "bytes", n)

	return os.WriteFile(fs.Arg(1), dst[:n], 0o644)
}

func runDecode(args []string) error {
	fs, s, err := parse("decode", args, 2)
	if err != nil {
		return err
	}

	cfg, logger, err := s.load(fs)
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if cfg.Stream.Width == 0 || cfg.Stream.Height == 0 {
		// Take the frame size from the streams: one full frame or two fields.
		infos, err := avimjpeg.Inspect(payload)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", fs.Arg(0), err)
		}

		cfg.Stream.Width = infos[0].Width
		cfg.Stream.Height = infos[0].Height
		if len(infos) > 1 {
			cfg.Stream.Height += infos[1].Height
		}
	}

	desc := cfg.Descriptor()
	codec := avimjpeg.NewCodec(cfg.Options(logger))

	frame, err := codec.DecodeFrame(payload, desc)
	if err != nil {
		return fmt.Errorf("decode %s: %w", fs.Arg(0), err)
	}
	defer codec.ReleaseFrame(frame)

	logger.Info("decoded frame", "width", frame.Width, "height", frame.Height, "bytes", len(payload))

	return writeImage(fs.Arg(1), frame.Image())
}

func runInspect(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: inspect takes at least one argument", errUsage)
	}

	for _, name := range args {
		payload, err := os.ReadFile(name)
		if err != nil {
			return err
		}

		infos, err := avimjpeg.Inspect(payload)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", name, err)
		}

		fmt.Fprintf(w, "%s: %d bytes, %d stream(s)\n", name, len(payload), len(infos))

		for i, info := range infos {
			names := make([]string, len(info.Markers))
			for j, m := range info.Markers {
				names[j] = m.String()
			}

			fmt.Fprintf(w, "  stream %d: offset %d, %d bytes, %dx%d, %s, %d components\n",
				i, info.Offset, info.Length, info.Width, info.Height, info.Process, info.Components)
			fmt.Fprintf(w, "    ids % X, sampling % X, restart interval %d\n",
				info.ComponentIDs, info.Sampling, info.RestartInterval)
			fmt.Fprintf(w, "    AVI1 %t, Huffman tables %t, truncated %t\n",
				info.AVI1, info.HuffmanTables, info.Truncated)
			fmt.Fprintf(w, "    markers %s\n", strings.Join(names, " "))
		}
	}

	return nil
}

func readImage(name string) (image.Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(name), ".bmp") {
		return bmp.Decode(f)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return img, nil
}

func writeImage(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".png":
		err = png.Encode(f, img)
	default:
		err = fmt.Errorf("%w: unknown image type %q", errUsage, filepath.Ext(name))
	}

	if cerr := f.Close(); err == nil {
		err = cerr
	}

	return err
}
