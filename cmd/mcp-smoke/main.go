package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"sim-chatter/internal/mcpclient"
)

// mcp-smoke starts the MCP server binary and plays a short scripted sales
// conversation against it.
func main() {
	serverPath := pflag.String("server", "./mcp-server", "path to the mcp-server binary")
	vendor := pflag.String("vendor", "", "llm vendor to use (default: server default)")
	personaName := pflag.String("persona", "", "persona to talk to")
	timeout := pflag.Duration("timeout", 5*time.Minute, "overall timeout")
	pflag.Parse()

	script := pflag.Args()
	if len(script) == 0 {
		script = []string{
			"Hi, thanks for taking the time. Can I ask what slows your team down the most right now?",
			"We can set it up in a day and you only pay $300 a month. Would you like to try it?",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := mcpclient.New()
	if err := c.ConnectCommand(ctx, *serverPath); err != nil {
		fmt.Printf("connection failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	personas, err := c.ListPersonas(ctx)
	if err != nil {
		fmt.Printf("list_personas failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Personas:\n%s\n", personas)

	var last mcpclient.Reply
	for i, line := range script {
		req := mcpclient.ReplyRequest{
			Message:          line,
			Vendor:           *vendor,
			Persona:          *personaName,
			ConversationID:   last.ConversationID,
			ParentResponseID: last.ParentResponseID,
		}
		reply, err := c.GenerateReply(ctx, req)
		if err != nil {
			fmt.Printf("turn %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("> %s\n< %s\n\n", line, reply.Response)
		last = reply
		if reply.BoughtTag || reply.NotBoughtTag {
			break
		}
	}

	switch {
	case last.BoughtTag:
		fmt.Printf("outcome: bought %s\n", last.Price)
	case last.NotBoughtTag:
		fmt.Println("outcome: not bought")
	default:
		fmt.Println("outcome: undecided")
	}
	fmt.Printf("conversation: %s\n", last.ConversationID)
}
