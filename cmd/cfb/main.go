package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/warlomak/compoundfiles"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s list <file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s cat <file> <stream-path>\n", os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	fs := afero.NewOsFs()
	device, err := compoundfiles.OpenFileDevice(fs, os.Args[2], true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sink := &compoundfiles.CollectSink{}
	cf, err := compoundfiles.OpenReader(device, &compoundfiles.Options{Sink: sink})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cf.Close()

	switch os.Args[1] {
	case "list":
		err = cf.Root().Walk(func(e *compoundfiles.Entry) error {
			if e.IsStream() {
				fmt.Printf("%10d  %s\n", e.StreamLen, e.Path)
			} else {
				fmt.Printf("%10s  %s/\n", "", e.Path)
			}
			return nil
		})
	case "cat":
		if len(os.Args) < 4 {
			usage()
		}
		var stream *compoundfiles.Stream
		stream, err = cf.OpenPath(os.Args[3])
		if err == nil {
			_, err = io.Copy(os.Stdout, stream)
		}
	default:
		usage()
	}

	if err != nil && err != io.EOF {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, w := range sink.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
}
