// sahl compiles and runs sahl programs.
package main

import (
	"os"

	"github.com/tliron/kutil/util"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	util.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
