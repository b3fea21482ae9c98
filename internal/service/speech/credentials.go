package speech

import (
	"net/http"
	"strings"

	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
)

// upstreamHeader 构造上游握手请求头，未配置密钥时返回空头。
func upstreamHeader(cfg speechmodel.SpeechConfig, connectID string) http.Header {
	header := http.Header{}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		header.Set("Authorization", "Bearer "+key)
	}
	if connectID != "" {
		header.Set("X-Connect-Id", connectID)
	}
	return header
}
