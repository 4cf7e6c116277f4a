package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/tcriess/bingo-chat/auth"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/persistence"
	"github.com/tcriess/bingo-chat/types"
)

// A very simple CLI tool for inspecting bingo-chat users, chats and messages.

// userDefinition is what "set user" reads, the password is given in clear text and stored hashed.
type userDefinition struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Pic      string `json:"pic"`
	IsAdmin  bool   `json:"isAdmin"`
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		globals.AppLogger.Error("could not marshal output", "error", err)
		return
	}
	fmt.Println(string(out))
}

func main() {
	var (
		configPath string
		persister  persistence.Persister
	)
	flagSet := config.GetFlagSet()
	ctx := context.Background()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show users, chats or messages",
		Long:  `show is for printing users, the chats of a user or the messages of a chat.`,
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users [keyword]",
		Short: "Show users",
		Long:  `shows a listing of all users, optionally only those whose name or email contains the keyword.`,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			keyword := ""
			if len(args) > 0 {
				keyword = args[0]
			}
			users, err := persister.SearchUsers(ctx, keyword, "")
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id or email]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id or email.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user, err := persister.GetUser(ctx, args[0])
			if err != nil {
				user, err = persister.GetUserByEmail(ctx, args[0])
			}
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	var cmdShowChats = &cobra.Command{
		Use:   "chats [user id]",
		Short: "Show chats",
		Long:  `show chats lists the chats of the user with the given id, most recently updated first.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			chats, err := persister.GetChatsForUser(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not get chats", "error", err)
				return
			}
			printJSON(chats)
		},
	}
	var cmdShowMessages = &cobra.Command{
		Use:   "messages [chat id]",
		Short: "Show messages",
		Long:  `show messages prints the history of the chat with the given id.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			messages, err := persister.GetMessages(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			printJSON(messages)
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create user or reset a password",
		Long:  `set creates users or resets their passwords.`,
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Create user",
		Long:  `set user creates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			def := userDefinition{}
			if err := json.NewDecoder(r).Decode(&def); err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if def.Name == "" || def.Email == "" || def.Password == "" {
				globals.AppLogger.Error("name, email and password are required")
				return
			}
			hash, err := auth.HashPassword(def.Password)
			if err != nil {
				globals.AppLogger.Error("could not hash password", "error", err)
				return
			}
			if def.Pic == "" {
				def.Pic = types.DefaultPic
			}
			user := &types.User{Name: def.Name, Email: def.Email, Password: hash, Pic: def.Pic, IsAdmin: def.IsAdmin}
			if err := persister.StoreUser(ctx, user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	var cmdSetPassword = &cobra.Command{
		Use:   "password [user id] [password]",
		Short: "Reset password",
		Long:  `set password replaces the password of the user with the given id.`,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			hash, err := auth.HashPassword(args[1])
			if err != nil {
				globals.AppLogger.Error("could not hash password", "error", err)
				return
			}
			if err := persister.UpdatePassword(ctx, args[0], hash); err != nil {
				globals.AppLogger.Error("could not update password", "error", err)
			}
		},
	}
	var rootCmd = &cobra.Command{
		Use:          "bingo-chat-admin",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			globalConfig, err := config.ReadConfiguration(configPath, flagSet)
			if err != nil {
				return err
			}
			globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
			persister, err = persistence.NewGormPersister(globalConfig)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if persister != nil {
				_ = persister.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")
	rootCmd.PersistentFlags().AddFlagSet(flagSet)
	rootCmd.AddCommand(cmdShow, cmdSet)
	cmdShow.AddCommand(cmdShowUsers, cmdShowUser, cmdShowChats, cmdShowMessages)
	cmdSet.AddCommand(cmdSetUser, cmdSetPassword)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
