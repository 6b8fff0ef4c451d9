package config

type Service struct {
	Name    string
	UserAPI string
	GameAPI string
	Origin  string
	Referer string
}

var Blum = Service{
	Name:    "Blum",
	UserAPI: "https://user-domain.blum.codes",
	GameAPI: "https://game-domain.blum.codes",
	Origin:  "https://telegram.blum.codes",
	Referer: "https://telegram.blum.codes/",
}
