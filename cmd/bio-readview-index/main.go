package main

// See doc.go for documentation
import (
	"bufio"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/readview/source"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	w := bufio.NewWriter(os.Stdout)
	if err := source.WriteIndex(w, bufio.NewReader(os.Stdin)); err != nil {
		log.Panicf("bio-readview-index: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Panicf("bio-readview-index: %v", err)
	}
}
