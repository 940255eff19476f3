package medium

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/logpile/internal/model"
)

var parserPool fastjson.ParserPool

// FileRetrieve reads entries back from the error, verbose, warning and
// catch-all files, in that order. Missing or unreadable files contribute
// nothing; lines that are not JSON objects are counted as skipped.
func FileRetrieve(opts FileOptions) RetrieveFunc {
	log := opts.logger()
	return func(ctx context.Context) (Retrieval, error) {
		var res Retrieval
		for _, path := range opts.readOrder() {
			part, err := readFile(ctx, path)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Retrieval{}, ctxErr
				}
				log.Warn("read log file", "path", path, "error", err)
			}
			res.Add(part)
		}
		if res.Skipped > 0 {
			log.Debug("skipped undecodable log lines", "count", res.Skipped)
		}
		return res, nil
	}
}

// readFile parses a JSON-lines file. A missing file is an empty result.
func readFile(ctx context.Context, path string) (Retrieval, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Retrieval{}, nil
	}
	if err != nil {
		return Retrieval{}, err
	}
	defer f.Close()
	return ReadLines(ctx, f)
}

// ReadLines decodes one entry per line from r. Blank lines are ignored.
// On a read error the entries decoded so far are returned with the error.
func ReadLines(ctx context.Context, r io.Reader) (Retrieval, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	var res Retrieval
	br := bufio.NewReaderSize(r, 64*1024)
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if e, perr := model.ParseEntry(p, line); perr == nil {
				res.Entries = append(res.Entries, e)
			} else {
				res.Skipped++
			}
		}
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
}
