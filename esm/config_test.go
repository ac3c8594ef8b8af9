package esm

import "testing"

var configCases = []struct {
	name  string
	mod   func(*Config)
	valid bool
}{
	{"default", func(*Config) {}, true},
	{"tiny", func(c *Config) { *c = TinyConf() }, true},
	{"no layers", func(c *Config) { c.NumLayers = 0 }, false},
	{"heads do not divide dim", func(c *Config) { c.NumHeads = 7 }, false},
	{"odd head dim", func(c *Config) { c.EmbedDim = 18; c.NumHeads = 2; c.FFDim = 36 }, false},
	{"vocab too small for mask", func(c *Config) { c.VocabSize = 8 }, false},
	{"zero eps", func(c *Config) { c.Eps = 0 }, false},
}

func TestConfigIsValid(t *testing.T) {
	for _, c := range configCases {
		conf := DefaultConf()
		c.mod(&conf)
		if got := conf.IsValid(); got != c.valid {
			t.Errorf("%s: IsValid() = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestDefaultConfShape(t *testing.T) {
	conf := DefaultConf()
	if conf.VocabSize != AlphabetSize {
		t.Errorf("default vocab %d, want %d", conf.VocabSize, AlphabetSize)
	}
	if conf.EmbedDim%conf.NumHeads != 0 {
		t.Error("default heads must divide the embedding width")
	}
}
