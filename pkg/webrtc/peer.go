package webrtc

import (
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v3"

	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
)

// Peer builds pion connections with one shared setting engine.
type Peer struct {
	api    *pion.API
	config *pion.Configuration
}

var (
	settingsOnce sync.Once
	settings     pion.SettingEngine
)

func DefaultPeerConnection(conf config.Webrtc, log *logger.Logger) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
			return nil, err
		}
	}

	settingsOnce.Do(func() {
		customLogger := logger.NewPionLogger(log, conf.LogLevel)
		settings = pion.SettingEngine{LoggerFactory: customLogger}
	})

	peerConf := pion.Configuration{ICEServers: []pion.ICEServer{}}
	for _, server := range conf.IceServers {
		peerConf.ICEServers = append(peerConf.ICEServers, pion.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &Peer{
		api:    pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(settings)),
		config: &peerConf,
	}, nil
}

func (p *Peer) NewPeer() (*pion.PeerConnection, error) { return p.api.NewPeerConnection(*p.config) }
