package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/usnistgov/h5viewer"
	"github.com/usnistgov/h5viewer/viewer"
)

// promptPicker is a terminal file picker: it lists a directory on the
// server and reads the user's choice from in.
type promptPicker struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *promptPicker) Pick(ctx context.Context, v *viewer.Viewer) (*h5viewer.DirEntry, error) {
	dir := ""
	for {
		listing, err := v.ListDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(p.out, "\n%s\n", listing.Dir)
		if listing.Parent != "" {
			fmt.Fprintf(p.out, "%3d  ..\n", 0)
		}
		for i, e := range listing.Entries {
			name := e.Name
			if e.IsDir {
				name += "/"
			}
			fmt.Fprintf(p.out, "%3d  %-40s %10d\n", i+1, name, e.Size)
		}
		fmt.Fprint(p.out, "Choose a number (empty to cancel): ")
		line, err := p.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, nil
		}
		n, convErr := strconv.Atoi(line)
		switch {
		case convErr != nil || n < 0 || n > len(listing.Entries):
			fmt.Fprintf(p.out, "%q is not a choice\n", line)
		case n == 0:
			if listing.Parent != "" {
				dir = listing.Parent
			}
		case listing.Entries[n-1].IsDir:
			dir = listing.Entries[n-1].Path
		default:
			entry := listing.Entries[n-1]
			return &entry, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// showPanels prints the content panel.
func showPanels(w io.Writer, panels []viewer.Panel, maxRows int) {
	for _, p := range panels {
		fmt.Fprintf(w, "\n== %s ==\n", p.Title)
		switch {
		case p.Error != "":
			fmt.Fprintln(w, p.Text())
		case p.Grid != nil:
			fmt.Fprintf(w, "%6s  %s\n", "", p.Grid.Columns[0])
			for i, row := range p.Grid.Rows {
				if i == maxRows {
					fmt.Fprintf(w, "... %d more rows\n", p.Grid.Len()-maxRows)
					break
				}
				fmt.Fprintf(w, "%6d  %v\n", i, row)
			}
		case p.Properties != nil:
			for _, name := range p.Properties.Names() {
				fmt.Fprintf(w, "%-24s %v\n", name, p.Properties.Source[name])
			}
		}
	}
}

func main() {
	server := flag.String("server", "http://localhost:3000", "URL of the h5viewer server")
	file := flag.String("file", "", "file to open (default: choose interactively)")
	dataset := flag.String("dataset", "", "path of a dataset to show")
	summary := flag.Bool("summary", false, "print statistics of the dataset")
	export := flag.String("export", "", "write the dataset to this .npy file")
	rows := flag.Int("rows", 20, "maximum number of grid rows to print")
	verbose := flag.Bool("verbose", false, "dump the decoded structure")
	timeout := flag.Duration("timeout", 30*time.Second, "timeout for the whole session")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	picker := &promptPicker{in: bufio.NewReader(os.Stdin), out: os.Stdout}
	v, err := viewer.New(*server,
		viewer.WithPicker(picker),
		viewer.WithAlert(func(msg string) { fmt.Fprintln(os.Stderr, msg) }),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer v.Close()

	if *file != "" {
		err = v.OnFileSelected(ctx, &h5viewer.DirEntry{Name: *file, Path: *file})
	} else {
		err = v.OpenFile(ctx)
	}
	if err != nil {
		os.Exit(1)
	}
	if v.CurrentFile() == "" {
		return
	}
	fmt.Printf("\n%s\n", v.CurrentFile())
	fmt.Print(v.Tree().Render())
	if *verbose {
		spew.Dump(v.Tree().Root())
	}
	if *dataset == "" {
		return
	}

	record := v.Tree().Find(*dataset)
	if record == nil {
		fmt.Fprintf(os.Stderr, "%s: no such object\n", *dataset)
		os.Exit(1)
	}
	if !record.IsDataset() {
		fmt.Fprintf(os.Stderr, "%s is a group\n", *dataset)
		os.Exit(1)
	}
	if err := v.Select(ctx, record); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	showPanels(os.Stdout, v.Panels(), *rows)

	if *summary {
		s, err := v.Summary(ctx, record.Path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("\n== Summary ==\n")
		spew.Fdump(os.Stdout, s)
	}
	if *export != "" {
		f, err := os.Create(*export)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		err = v.ExportNPY(ctx, record.Path, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *export)
	}
}
