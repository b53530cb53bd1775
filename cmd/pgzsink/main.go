// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command pgzsink compresses local files, URLs, or S3 objects to gzip
// using a parallel, order-preserving pipeline. Files may be local, on S3,
// or a URL -- the structural mirror of pbzip2's own cmd/pbzip2 "unzip"
// subcommand, but for the compression direction.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/cosnicolaou/pgzsink"
)

type CommonFlags struct {
	Concurrency      int  `subcmd:"concurrency,4,'concurrency for the compression'"`
	BlockSize        int  `subcmd:"block-size,131072,'bytes per compressed block'"`
	CompressionLevel int  `subcmd:"level,3,'deflate compression level, 0-9'"`
	Klauspost        bool `subcmd:"klauspost,false,'use the klauspost/compress codec instead of compress/gzip'"`
	Verbose          bool `subcmd:"verbose,false,verbose structured logging"`
}

type zipFlags struct {
	CommonFlags
	ProgressBar bool   `subcmd:"progress,true,display a progress bar"`
	OutputFile  string `subcmd:"output,,'output file or s3 path, omit for stdout'"`
}

type benchFlags struct {
	CommonFlags
	MaxConcurrency int `subcmd:"max-concurrency,0,'upper bound for the concurrency sweep, 0 means GOMAXPROCS'"`
}

var cmdSet *subcmd.CommandSet

func init() {
	defaultConcurrency := map[string]interface{}{
		"concurrency": runtime.GOMAXPROCS(-1),
	}

	zipCmd := subcmd.NewCommand("zip",
		subcmd.MustRegisterFlagStruct(&zipFlags{}, defaultConcurrency, nil),
		zip, subcmd.ExactlyNumArguments(1))
	zipCmd.Document(`compress a file to gzip using a parallel pipeline.`)

	benchCmd := subcmd.NewCommand("bench",
		subcmd.MustRegisterFlagStruct(&benchFlags{}, defaultConcurrency, nil),
		bench, subcmd.ExactlyNumArguments(1))
	benchCmd.Document(`benchmark the parallel pipeline over a range of worker counts.`)

	cmdSet = subcmd.NewCommandSet(zipCmd, benchCmd)
	cmdSet.Document(`compress files or streams to gzip in parallel. Files may be local, on S3 or a URL.`)

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	cmdSet.MustDispatch(context.Background())
}

func newZapLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func openFileOrURL(ctx context.Context, name string) (io.Reader, int64, func(context.Context) error, error) {
	if strings.HasPrefix(name, "http") {
		resp, err := http.Get(name)
		if err != nil {
			return nil, 0, nil, err
		}
		return resp.Body,
			resp.ContentLength,
			func(context.Context) error {
				resp.Body.Close()
				return nil
			},
			nil
	}
	info, err := file.Stat(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	fd, err := file.Open(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	return fd.Reader(ctx), info.Size(), fd.Close, nil
}

func createFile(ctx context.Context, name string) (io.Writer, func(context.Context) error, error) {
	if len(name) == 0 {
		return os.Stdout,
			func(context.Context) error { return nil },
			nil
	}
	fd, err := file.Create(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return fd.Writer(ctx), fd.Close, nil
}

func buildSink(cl *CommonFlags, downstream io.Writer, logger *zap.Logger, progressCh chan<- pgzsink.Progress) (*pgzsink.Sink, error) {
	b := pgzsink.NewBuilder(downstream).
		BlockSize(cl.BlockSize).
		CompressionLevel(cl.CompressionLevel).
		WorkerCount(cl.Concurrency)
	if cl.Klauspost {
		b = b.Codec(pgzsink.KlauspostCodec{})
	}
	if progressCh != nil {
		b = b.SendProgress(progressCh)
	}
	_ = logger // structured logging is consumed by the bar/trace goroutine below
	return b.Build()
}

func progressBar(ctx context.Context, w io.Writer, ch chan pgzsink.Progress, size int64, logger *zap.Logger) {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetPredictTime(true))
	bar.RenderBlank()
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return
			}
			bar.Add(p.UncompressedSize)
			logger.Debug("wrote block",
				zap.Uint64("seq", p.Seq),
				zap.Int("uncompressed", p.UncompressedSize),
				zap.Int("compressed", p.CompressedSize),
				zap.Duration("duration", p.Duration))
		case <-ctx.Done():
			return
		}
	}
}

func zip(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*zipFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	logger := newZapLogger(cl.Verbose)
	defer logger.Sync() //nolint:errcheck

	rd, size, readerCleanup, err := openFileOrURL(ctx, args[0])
	if err != nil {
		return err
	}
	defer readerCleanup(ctx)

	wr, writerCleanup, err := createFile(ctx, cl.OutputFile)
	if err != nil {
		return err
	}

	isTTY := terminal.IsTerminal(int(os.Stdout.Fd()))
	var progressCh chan pgzsink.Progress
	var progressWg sync.WaitGroup
	if cl.ProgressBar && (len(cl.OutputFile) > 0 || !isTTY) {
		progressCh = make(chan pgzsink.Progress, cl.Concurrency)
		barWr := os.Stdout
		if !isTTY {
			barWr = os.Stderr
		}
		progressWg.Add(1)
		go func() {
			defer progressWg.Done()
			progressBar(ctx, barWr, progressCh, size, logger)
		}()
	}

	sink, err := buildSink(&cl.CommonFlags, wr, logger, progressCh)
	if err != nil {
		return err
	}

	errs := &errors.M{}
	_, copyErr := io.Copy(sink, rd)
	errs.Append(copyErr)
	errs.Append(sink.Finish())
	errs.Append(writerCleanup(ctx))

	if progressCh != nil {
		close(progressCh)
		progressWg.Wait()
	}
	return errs.Err()
}

func bench(ctx context.Context, values interface{}, args []string) error {
	cl := values.(*benchFlags)
	logger := newZapLogger(cl.Verbose)
	defer logger.Sync() //nolint:errcheck

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	maxConcurrency := cl.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.GOMAXPROCS(-1)
	}

	for n := 1; n <= maxConcurrency; n++ {
		start := time.Now()
		b := pgzsink.NewBuilder(io.Discard).
			BlockSize(cl.BlockSize).
			CompressionLevel(cl.CompressionLevel).
			WorkerCount(n)
		if cl.Klauspost {
			b = b.Codec(pgzsink.KlauspostCodec{})
		}
		sink, err := b.Build()
		if err != nil {
			return err
		}
		if _, err := sink.Write(data); err != nil {
			return err
		}
		if err := sink.Finish(); err != nil {
			return err
		}
		elapsed := time.Since(start)
		fmt.Printf("workers=%d elapsed=%v throughput=%.2f MB/s\n",
			n, elapsed, float64(len(data))/elapsed.Seconds()/(1<<20))
		logger.Info("bench iteration", zap.Int("workers", n), zap.Duration("elapsed", elapsed))
	}
	return nil
}
