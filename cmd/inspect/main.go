// Command inspect prints the message history held in a Badger store. It
// opens the database read-only so it can run next to a live server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "data/badger", "Path to badger DB")
	kind := flag.String("kind", "", "Only show messages of this kind (chat or dm)")
	flag.Parse()

	db, err := store.OpenBadgerReadOnly(*dbPath, nil)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	msgs, err := db.Messages(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	if *kind != "" {
		want := chat.Kind(strings.ToLower(*kind))
		msgs = lo.Filter(msgs, func(m chat.MessageEvent, _ int) bool { return m.Kind == want })
	}

	render(os.Stdout, msgs)
	fmt.Printf("%d message(s)\n", len(msgs))
}

func render(w io.Writer, msgs []chat.MessageEvent) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Kind", "From", "To", "Message", "Upload", "ID"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range msgs {
		id := m.ID.String()
		if len(id) > 8 {
			id = id[:8]
		}
		table.Append([]string{
			m.Timestamp.Local().Format("2006-01-02 15:04:05"),
			kindLabel(m.Kind),
			m.Sender,
			m.Target,
			m.Body,
			m.AttachmentURL,
			id,
		})
	}
	table.Render()
}

func kindLabel(k chat.Kind) string {
	switch k {
	case chat.KindDirect:
		return color.Magenta.Sprint("DM")
	case chat.KindChat:
		return color.Green.Sprint("CHAT")
	default:
		return color.Gray.Sprint(strings.ToUpper(string(k)))
	}
}
