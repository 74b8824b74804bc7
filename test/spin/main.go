package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/yola1107/kratos/contrib/log/zap/v2"
	"github.com/yola1107/kratos/v2/log"
)

var (
	addr   = flag.String("addr", "127.0.0.1:8000", "server address")
	player = flag.String("player", "tester", "player id")
	bet    = flag.String("bet", "10", "bet per spin")
	spins  = flag.Int("n", 5, "number of spins")
	slam   = flag.Bool("slam", false, "slam-stop each spin after 1s")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	flag.Parse()

	zapLogger := zap.New(nil)
	defer zapLogger.Close()

	log.SetLogger(zapLogger)

	log.Infof("start spin client")
	defer log.Infof("close spin client")

	// 订阅推送
	ws, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://%s/ws?player=%s", *addr, *player), nil)
	if err != nil {
		log.Fatalf("ws dial: %v", err)
	}
	defer ws.Close()
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			log.Infof("push-> %s", data)
		}
	}()

	call("/v1/enter", map[string]any{"playerId": *player, "balance": "1000"})

	for i := 0; i < *spins; i++ {
		if *slam {
			call("/v1/spin/start", map[string]any{"playerId": *player, "bet": *bet})
			time.Sleep(time.Second)
			call("/v1/spin/slam", map[string]any{"playerId": *player})
			time.Sleep(2 * time.Second)
		} else {
			call("/v1/spin", map[string]any{"playerId": *player, "bet": *bet})
		}
		time.Sleep(time.Second)
	}

	call("/v1/leave", map[string]any{"playerId": *player})
}

func call(path string, body map[string]any) {
	buf, _ := json.Marshal(body)
	resp, err := http.Post("http://"+*addr+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		log.Errorf("%s: %v", path, err)
		return
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	log.Infof("%s-> %d %s", path, resp.StatusCode, data)
}
