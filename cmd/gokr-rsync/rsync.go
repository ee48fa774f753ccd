// Tool gokr-rsync is an rsync(1)/rsyncd(8)-compatible client, remote-shell
// server, and standalone daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/oferchen/rsync-sub020/internal/maincmd"
	"github.com/oferchen/rsync-sub020/internal/rsyncos"
)

func main() {
	osenv := rsyncos.Std()
	stats, err := maincmd.Main(context.Background(), osenv, os.Args)
	if err != nil {
		log.Fatal(err)
	}
	if stats != nil && osenv != nil {
		fmt.Fprintf(osenv.Stderr, "%+v\n", *stats)
	}
}
