package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

// A very simple CLI tool for the administration of tripmesh users and trips.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	store, err := persistence.NewStore(globalConfig)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show users, trips or bookings",
		Long:  `show prints user, trip or booking information.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `shows a listing of all users, optionally restricted to one role.`,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			role := ""
			if len(args) > 0 {
				role = args[0]
			}
			users, err := store.GetUsersByRole(role)
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			u, err := json.Marshal(users)
			if err != nil {
				globals.AppLogger.Error("could not marshal users", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := store.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			u, err := json.Marshal(user)
			if err != nil {
				globals.AppLogger.Error("could not marshal user", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowTrips = &cobra.Command{
		Use:   "trips",
		Short: "Show trips",
		Long:  `shows a listing of all trips.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			trips, err := store.GetAllTrips()
			if err != nil {
				globals.AppLogger.Error("could not get trips", "error", err)
				return
			}
			t, err := json.Marshal(trips)
			if err != nil {
				globals.AppLogger.Error("could not marshal trips", "error", err)
				return
			}
			fmt.Println(string(t))
		},
	}
	var cmdShowTrip = &cobra.Command{
		Use:   "trip [trip id]",
		Short: "Show trip",
		Long:  `show trip prints detail information about the trip with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			trip := types.Trip{Id: args[0]}
			err := store.GetTrip(&trip)
			if err != nil {
				globals.AppLogger.Error("could not get trip", "error", err)
				return
			}
			t, err := json.Marshal(trip)
			if err != nil {
				globals.AppLogger.Error("could not marshal trip", "error", err)
				return
			}
			fmt.Println(string(t))
		},
	}
	var cmdShowBookings = &cobra.Command{
		Use:   "bookings",
		Short: "Show bookings",
		Long:  `shows a listing of all bookings, optionally restricted to one status.`,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			status := ""
			if len(args) > 0 {
				status = args[0]
			}
			bookings, err := store.GetBookingsByStatus(status)
			if err != nil {
				globals.AppLogger.Error("could not get bookings", "error", err)
				return
			}
			b, err := json.Marshal(bookings)
			if err != nil {
				globals.AppLogger.Error("could not marshal bookings", "error", err)
				return
			}
			fmt.Println(string(b))
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete user or trip",
		Long:  `delete removes the user or trip with a given id.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Delete user",
		Long:  `delete user removes the user with the given id, together with their trips and bookings.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := store.DeleteUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not delete user", "error", err)
				return
			}
		},
	}
	var cmdDeleteTrip = &cobra.Command{
		Use:   "trip [trip id]",
		Short: "Delete trip",
		Long:  `delete trip removes the trip with the given id, together with its bookings.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			trip := types.Trip{Id: args[0]}
			err := store.DeleteTrip(&trip)
			if err != nil {
				globals.AppLogger.Error("could not delete trip", "error", err)
				return
			}
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update user, or change a user's role",
		Long:  `set creates or updates a user.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			user := types.User{}
			err := dec.Decode(&user)
			if err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			globals.AppLogger.Info("got user", "user", user)
			if user.Id == "" {
				globals.AppLogger.Error("no user id")
				return
			}
			if user.Role == "" {
				user.Role = types.RoleUser
			}
			err = store.StoreUser(user)
			if err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	var cmdSetRole = &cobra.Command{
		Use:   "role [user id] [role]",
		Short: "Set user role",
		Long:  `set role changes the role of the user with the given id (user, organiser or admin).`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			role := args[1]
			if role != types.RoleUser && role != types.RoleOrganiser && role != types.RoleAdmin {
				globals.AppLogger.Error("unknown role", "role", role)
				return
			}
			user := types.User{Id: args[0]}
			err := store.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			user.Role = role
			err = store.StoreUser(user)
			if err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	var cmdVerify = &cobra.Command{
		Use:   "verify [user id]",
		Short: "Mark a user as verified",
		Long:  `verify marks the user with the given id as verified.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := store.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			user.IsVerified = true
			err = store.StoreUser(user)
			if err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	var cmdToken = &cobra.Command{
		Use:   "token [user id]",
		Short: "Mint a session token",
		Long:  `token mints a signed session token for the user with the given id, valid for 24 hours. Intended for development and testing.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if globalConfig.SessionSecret == "" {
				globals.AppLogger.Error("no session secret configured")
				return
			}
			user := types.User{Id: args[0]}
			err := store.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			identity := &auth.Identity{UserId: user.Id, Username: user.Username, Role: user.Role}
			token, err := auth.NewToken(identity, globalConfig.SessionSecret, 24*time.Hour)
			if err != nil {
				globals.AppLogger.Error("could not mint token", "error", err)
				return
			}
			fmt.Println(token)
		},
	}
	var rootCmd = &cobra.Command{Use: "tripmesh-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdDelete)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdVerify)
	rootCmd.AddCommand(cmdToken)
	cmdShow.AddCommand(cmdShowUsers, cmdShowUser, cmdShowTrips, cmdShowTrip, cmdShowBookings)
	cmdDelete.AddCommand(cmdDeleteUser, cmdDeleteTrip)
	cmdSet.AddCommand(cmdSetUser, cmdSetRole)
	rootCmd.Execute()
}
