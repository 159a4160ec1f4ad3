package main

import (
	"context"
	"fmt"

	"github.com/eiannone/keyboard"
	"tipbot/engine/actors"
	"tipbot/state/poller"
)

// cliListener is a cheap and nasty way to poke the running bot. It listens for keypresses and executes commands.
func cliListener(ctx context.Context, a *app, p *poller.Poller) {
	fmt.Println("p: poll now\na: accounts\nc: bot config\nw: bot wallet\nq: to quit\nSee cliListener.go for more")
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			fmt.Println(err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		str := string(r)
		switch str {
		default:
			if k == keyboard.KeyEnter {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to anything. See cliListener.go for more details.")
		case "q":
			actors.Shutdown()
			return
		case "p":
			rep, err := p.RunCycle(ctx)
			if err != nil {
				fmt.Println(err)
				break
			}
			fmt.Printf("%+v\n", rep)
		case "a":
			list, err := a.store.ListAccounts(ctx)
			if err != nil {
				fmt.Println(err)
				break
			}
			for _, acc := range list {
				fmt.Printf("%s %s %s claims: %d events: %d\n", acc.Handle, acc.CustodyMode, acc.PublicAddress, len(acc.PendingClaims), len(acc.History))
			}
		case "w":
			w, err := actors.BotWallet(a.settings.RootDir, a.secrets.NostrSecret)
			if err != nil {
				fmt.Println(err)
				break
			}
			fmt.Printf("Bot Wallet: \n%s\n", w.Account)
		case "c":
			printConfig()
		}
	}
}

func printConfig() {
	fmt.Println("CURRENT CONFIG")
	for k, v := range actors.MakeOrGetConfig().AllSettings() {
		fmt.Printf("\nKey: %s; Value: %v\n", k, v)
	}
}
