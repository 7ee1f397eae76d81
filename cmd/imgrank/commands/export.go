package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var exportPublish bool

var exportCmd = &cobra.Command{
	Use:   "export <rankings.csv>",
	Short: "Write the full ranking as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportPublish, "publish", false, "Also upload the CSV to S3")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.engine.ExportRankings(ctx, path)
	if err != nil {
		return errors.Wrap(err, "export failed")
	}
	fmt.Printf("📄 Wrote %d images to %s\n", n, path)

	if !exportPublish {
		return nil
	}

	client, err := s.publisher(ctx)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("--publish needs an S3 bucket (set --s3-bucket or IMGRANK_S3_BUCKET)")
	}

	key := client.Key(s.workspace.Name(), filepath.Base(path))
	res, err := client.UploadFile(ctx, key, path)
	if err != nil {
		return errors.Wrap(err, "upload failed")
	}
	fmt.Printf("☁️  Uploaded s3://%s/%s (sha256 %s)\n", client.Bucket(), res.Key, res.SHA256[:16])
	return nil
}
