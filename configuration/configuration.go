package configuration

type Configuration struct {
	HttpAddr          string `usage:"HTTP address"`
	Dir               string `usage:"data directory, realm paths are relative to it"`
	LogLevel          string `usage:"log level: debug, info, warn or error"`
	EnableCompression bool   `usage:"gzip responses"`
	ApiKey            string `usage:"api key, required in X-Api-Key when set"`
	ApiSecret         string `usage:"api secret, required in X-Api-Secret when set"`
	Version           bool   `usage:"show version and exit"`
	ShowBanner        bool   `usage:"show big banner"`
	ShowConfig        bool   `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:          ":8080",
		Dir:               "data",
		LogLevel:          "info",
		EnableCompression: true,
		ShowBanner:        true,
	}
}
