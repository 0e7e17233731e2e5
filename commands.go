package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/library"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/upload"
	"github.com/drummonds/pdfshelf/internal/viewer"
)

var (
	flagPage   int
	flagName   string
	flagFilter string
	flagOut    string
	flagZoom   string
	flagWidth  int
	flagHeight int
	flagMeta   upload.Metadata
)

func newClient() (*api.Client, error) {
	return api.New(conf.APIURL,
		api.WithOwner(conf.Owner),
		api.WithTimeout(conf.Timeout),
		api.WithLogger(logging.New("api")),
	)
}

// newLibrary returns a list controller that reports to stderr.
func newLibrary(cmd *cobra.Command) (*library.Controller, error) {
	cli, err := newClient()
	if err != nil {
		return nil, err
	}
	return library.New(cli, consoleNotifier{w: cmd.ErrOrStderr()}, logging.New("library")), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List all documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := newLibrary(cmd)
			if err != nil {
				return err
			}
			if err := lib.Load(cmd.Context()); err != nil {
				return err
			}
			return printDocuments(cmd.OutOrStdout(), flagOutput, lib.Documents(), lib.IsBookmarked)
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search documents by title, filename, product code, edition or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := newLibrary(cmd)
			if err != nil {
				return err
			}
			if err := lib.Search(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printDocuments(cmd.OutOrStdout(), flagOutput, lib.Documents(), nil)
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one document and its bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			doc, err := cli.GetDocument(cmd.Context(), id)
			if err != nil {
				return err
			}
			detail := documentDetail{Document: *doc}
			if bm, ok, err := cli.GetBookmark(cmd.Context(), id); err != nil {
				return err
			} else if ok {
				detail.Bookmark = bm
			}
			return printDocument(cmd.OutOrStdout(), flagOutput, detail)
		},
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a PDF document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctrl := upload.NewController(cli, nil, consoleNotifier{w: cmd.ErrOrStderr()}, logging.New("upload"))
			res, err := ctrl.Submit(cmd.Context(), &upload.File{Name: filepath.Base(args[0]), Data: data}, flagMeta)
			if err != nil {
				return err
			}
			cmd.Printf("%d\t%s\t%d pages\n", res.DocumentID, res.Filename, res.PageCount)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a document and its bookmarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			lib, err := newLibrary(cmd)
			if err != nil {
				return err
			}
			return lib.Delete(cmd.Context(), id)
		},
	}
}

func newBookmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bookmark ID",
		Short: "Bookmark a page of a document, replacing an existing bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if flagPage < 1 {
				return fmt.Errorf("page must be at least 1, got %d", flagPage)
			}
			lib, err := newLibrary(cmd)
			if err != nil {
				return err
			}
			_, err = lib.SetBookmark(cmd.Context(), id, flagPage, flagName)
			return err
		},
	}
}

func newUnbookmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unbookmark ID",
		Short: "Remove the bookmark of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			lib, err := newLibrary(cmd)
			if err != nil {
				return err
			}
			_, ok, err := lib.BookmarkStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("document %d is not bookmarked", id)
			}
			_, err = lib.ToggleBookmark(cmd.Context(), id, 0, "")
			return err
		},
	}
}

func newBookmarksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bookmarks",
		Short: "List your bookmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := newLibrary(cmd)
			if err != nil {
				return err
			}
			if err := lib.RefreshBookmarks(cmd.Context()); err != nil {
				return err
			}
			return printBookmarks(cmd.OutOrStdout(), flagOutput, lib.FilterBookmarks(flagFilter))
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download ID",
		Short: "Download the watermarked copy of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			dl, err := cli.DownloadDocument(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := flagOut
			if out == "" {
				out = filepath.Base(dl.Filename)
			}
			if err := os.WriteFile(out, dl.Data, 0644); err != nil {
				return err
			}
			cmd.Printf("Wrote %s (%d bytes)\n", out, len(dl.Data))
			return nil
		},
	}
}

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render ID",
		Short: "Render one watermarked page of a document to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			zoom, err := viewer.ParseZoom(flagZoom)
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			data, err := cli.ViewDocument(cmd.Context(), id)
			if err != nil {
				return err
			}
			engine, err := viewer.NewPDFium(1)
			if err != nil {
				return err
			}
			defer engine.Close()

			frame, err := renderPage(cmd.Context(), engine, data, flagPage, zoom,
				image.Pt(flagWidth, flagHeight), viewer.NewWatermark(conf.Watermark))
			if err != nil {
				return err
			}
			out := flagOut
			if out == "" {
				out = fmt.Sprintf("document-%d-page-%d.png", id, frame.Page)
			}
			if err := writePNG(out, frame.Image); err != nil {
				return err
			}
			cmd.Printf("Wrote %s (page %d of %d, scale %.2f)\n", out, frame.Page, frame.Total, frame.Scale)
			return nil
		},
	}
}

// frameSink keeps the first render outcome.
type frameSink chan renderOutcome

type renderOutcome struct {
	frame *viewer.Frame
	err   error
}

func (s frameSink) PageRendered(f *viewer.Frame) {
	select {
	case s <- renderOutcome{frame: f}:
	default:
	}
}

func (s frameSink) RenderFailed(_ int, err error) {
	select {
	case s <- renderOutcome{err: err}:
	default:
	}
}

// renderPage renders one page through a short-lived Viewer.
func renderPage(ctx context.Context, engine viewer.Engine, data []byte, page int, zoom viewer.Zoom, viewport image.Point, wm *viewer.Watermark) (*viewer.Frame, error) {
	doc, err := engine.Open(data)
	if err != nil {
		return nil, err
	}
	sink := make(frameSink, 1)
	v := viewer.New(doc, sink, viewer.Options{Watermark: wm, Zoom: zoom, Viewport: viewport, Logger: logging.New("render")})
	defer v.Close()

	if err := v.RequestPage(page); err != nil {
		return nil, err
	}
	select {
	case out := <-sink:
		return out.frame, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newShowCmd())

	uploadCmd := newUploadCmd()
	uploadCmd.Flags().StringVar(&flagMeta.Title, "title", "", "Document title")
	uploadCmd.Flags().StringVar(&flagMeta.ProductCode, "product-code", "", "Product code")
	uploadCmd.Flags().StringVar(&flagMeta.Edition, "edition", "", "Edition")
	uploadCmd.Flags().StringVar(&flagMeta.PublicationDate, "publication-date", "", "Publication date (YYYY-MM-DD)")
	uploadCmd.Flags().StringVar(&flagMeta.Notes, "notes", "", "Notes")
	uploadCmd.Flags().StringVar(&flagMeta.CreatedBy, "created-by", "", "Uploader name")
	rootCmd.AddCommand(uploadCmd)

	rootCmd.AddCommand(newRemoveCmd())

	bookmarkCmd := newBookmarkCmd()
	bookmarkCmd.Flags().IntVar(&flagPage, "page", 1, "Page to bookmark")
	bookmarkCmd.Flags().StringVar(&flagName, "name", "", "Bookmark name")
	rootCmd.AddCommand(bookmarkCmd)

	rootCmd.AddCommand(newUnbookmarkCmd())

	bookmarksCmd := newBookmarksCmd()
	bookmarksCmd.Flags().StringVar(&flagFilter, "filter", "", "Only bookmarks whose title or name contains this text")
	rootCmd.AddCommand(bookmarksCmd)

	downloadCmd := newDownloadCmd()
	downloadCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output file (default: the server's filename)")
	rootCmd.AddCommand(downloadCmd)

	renderCmd := newRenderCmd()
	renderCmd.Flags().IntVar(&flagPage, "page", 1, "Page to render")
	renderCmd.Flags().StringVar(&flagZoom, "zoom", "1", "Zoom: a scale such as 1.5, or fit or auto")
	renderCmd.Flags().IntVar(&flagWidth, "width", 1200, "Viewport width used by fit and auto")
	renderCmd.Flags().IntVar(&flagHeight, "height", 900, "Viewport height used by auto")
	renderCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output PNG file")
	rootCmd.AddCommand(renderCmd)
}
