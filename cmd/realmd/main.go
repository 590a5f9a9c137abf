package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/realmdb/bootstrap"
	"github.com/fulldump/realmdb/configuration"
)

var banner = `
                 _           _ _
  _ __ ___  __ _| |_ __ ___ | | |__
 | '__/ _ \/ _' | | '_ ' _ \| | '_ \
 | | |  __/ (_| | | | | | | |_| |_) |
 |_|  \___|\__,_|_|_| |_| |_(_)_.__/
                    version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	logger, err := bootstrap.NewLogger(c.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
		os.Exit(2)
	}

	start, _, err := bootstrap.Bootstrap(&c, logger)
	if err != nil {
		logger.Error("bootstrap", "err", err)
		os.Exit(1)
	}

	start()
}
