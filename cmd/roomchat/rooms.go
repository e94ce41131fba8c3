package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roomchat/roomchat/internal/directory"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Browse and manage rooms",
}

var (
	flagPage   int
	flagLimit  int
	flagRemove bool
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of rooms",
		Args:  cobra.NoArgs,
		RunE: withDirectory(func(cmd *cobra.Command, dir *directory.Client, _ []string) error {
			rooms, err := dir.ListRooms(cmd.Context(), flagPage, flagLimit)
			if err != nil {
				return err
			}
			printRooms(cmd.OutOrStdout(), rooms)
			return nil
		}),
	}
	listCmd.Flags().IntVar(&flagPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&flagLimit, "limit", 20, "rooms per page")

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a room",
		Args:  cobra.ExactArgs(1),
		RunE: withDirectory(func(cmd *cobra.Command, dir *directory.Client, args []string) error {
			room, err := dir.CreateRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", room.RoomName)
			return nil
		}),
	}

	findCmd := &cobra.Command{
		Use:   "find <name>",
		Short: "Search rooms by name",
		Args:  cobra.ExactArgs(1),
		RunE: withDirectory(func(cmd *cobra.Command, dir *directory.Client, args []string) error {
			rooms, err := dir.FindRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRooms(cmd.OutOrStdout(), rooms)
			return nil
		}),
	}

	favoriteCmd := &cobra.Command{
		Use:   "favorite <name>",
		Short: "Add a room to favorites, or remove it with --remove",
		Args:  cobra.ExactArgs(1),
		RunE: withDirectory(func(cmd *cobra.Command, dir *directory.Client, args []string) error {
			return dir.SetFavorite(cmd.Context(), args[0], !flagRemove)
		}),
	}
	favoriteCmd.Flags().BoolVar(&flagRemove, "remove", false, "remove from favorites")

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a room you own",
		Args:  cobra.ExactArgs(1),
		RunE: withDirectory(func(cmd *cobra.Command, dir *directory.Client, args []string) error {
			return dir.DeleteRoom(cmd.Context(), args[0])
		}),
	}

	roomsCmd.AddCommand(listCmd, createCmd, findCmd, favoriteCmd, deleteCmd)
}

func withDirectory(run func(*cobra.Command, *directory.Client, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		dir, _, closeCreds, err := openDirectory()
		if err != nil {
			return err
		}
		defer closeCreds()
		return run(cmd, dir, args)
	}
}

func printRooms(out io.Writer, rooms []directory.Room) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tMEMBERS\tFAVORITE\tOWNER")
	for _, r := range rooms {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.RoomName, len(r.Members), mark(r.IsFavorite), mark(r.IsOwner))
	}
	w.Flush()
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}
