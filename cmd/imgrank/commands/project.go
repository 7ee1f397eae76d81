package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/project"
	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage ranking projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects with image and comparison counts",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <old-name> <new-name>",
	Short: "Rename a project; use an empty old name to save the unsaved project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectRename,
}

var projectDuplicateCmd = &cobra.Command{
	Use:   "duplicate <name> <new-name>",
	Short: "Copy a project with all its images and comparisons",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectDuplicate,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd, projectCreateCmd, projectRenameCmd, projectDuplicateCmd)
}

func openManager() (*project.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := ensureDirectories(cfg.ProjectsDir, ""); err != nil {
		return nil, err
	}
	m, err := project.NewManager(cfg.ProjectsDir)
	if err != nil {
		return nil, errors.Wrap(err, "project manager init failed")
	}
	return m, nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	projects, err := m.List(context.Background())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	if len(projects) == 0 {
		fmt.Println("No projects found")
		return nil
	}

	fmt.Printf("%-32s %-8s %-12s\n", "PROJECT", "IMAGES", "COMPARISONS")
	fmt.Println("------------------------------------------------------")
	for _, p := range projects {
		fmt.Printf("%-32s %-8d %-12d\n", p.Name, p.ImageCount, p.ComparisonCount)
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Create(args[0])
	if err != nil {
		return errors.Wrap(err, "create failed")
	}
	fmt.Printf("✅ Created project %s (%s)\n", p.Name, p.Path)
	return nil
}

func runProjectRename(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Rename(args[0], args[1])
	if err != nil {
		return errors.Wrap(err, "rename failed")
	}
	fmt.Printf("✅ Renamed to %s\n", p.Name)
	return nil
}

func runProjectDuplicate(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Duplicate(context.Background(), args[0], args[1])
	if err != nil {
		return errors.Wrap(err, "duplicate failed")
	}
	fmt.Printf("✅ Duplicated %s as %s\n", args[0], p.Name)
	return nil
}
