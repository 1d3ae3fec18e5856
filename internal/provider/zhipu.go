package provider

import (
	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
)

// newZhipuClient returns a client for the Zhipu (Z.ai) GLM API. It speaks
// chat-completions; its streams may send bare JSON lines and always carry
// usage in the final chunk.
func newZhipuClient(pc config.ProviderConfig, t *transport) ProviderClient {
	return &chatCompletionsClient{id: constants.ProviderZhipu, pc: pc, t: t, bareLines: true}
}
