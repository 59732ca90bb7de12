// Command machine_simulator publishes fake machine readings so the bridge
// can be exercised without real hardware.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MachineReading has the same shape the bridge decodes.
type MachineReading struct {
	Maquina     string    `json:"Maquina"`
	Volume      int       `json:"Volume"`
	Temperatura int       `json:"Temperatura"`
	Status      string    `json:"Status,omitempty"`
	DataHora    time.Time `json:"DataHora"`
}

type machine struct {
	name     string
	interval time.Duration
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	username := flag.String("username", "", "MQTT username")
	password := flag.String("password", "", "MQTT password")
	topic := flag.String("topic", "sensores/dados", "topic the bridge subscribes to")
	alerts := flag.String("alerts", "sensores/alertas", "topic to print verdicts from, empty to skip")
	mode := flag.String("mode", "continuous", "run mode: single, batch, continuous")
	flag.Parse()

	opts := paho.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("machine-simulator-%d", time.Now().UnixNano()))
	opts.SetUsername(*username)
	opts.SetPassword(*password)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		fmt.Printf("connection lost: %v\n", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("connect failed: %v\n", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	if *alerts != "" {
		token := client.Subscribe(*alerts, 0, func(_ paho.Client, msg paho.Message) {
			fmt.Printf("verdict: %s\n", msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			fmt.Printf("subscribe %s failed: %v\n", *alerts, token.Error())
		}
	}

	switch *mode {
	case "single":
		// 一条必定触发全部告警的读数
		publish(client, *topic, MachineReading{
			Maquina:     "MAQ-001",
			Volume:      15,
			Temperatura: 85,
			Status:      "operando",
			DataHora:    time.Now().UTC(),
		})
		time.Sleep(time.Second)
	case "batch":
		for i := 1; i <= 10; i++ {
			publish(client, *topic, randomReading(fmt.Sprintf("MAQ-%03d", i)))
			time.Sleep(100 * time.Millisecond)
		}
		time.Sleep(time.Second)
	case "continuous":
		runContinuous(client, *topic)
	default:
		fmt.Printf("unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runContinuous(client paho.Client, topic string) {
	machines := []machine{
		{name: "MAQ-001", interval: 5 * time.Second},
		{name: "MAQ-002", interval: 7 * time.Second},
		{name: "MAQ-003", interval: 10 * time.Second},
	}

	stop := make(chan struct{})
	for _, m := range machines {
		go func(m machine) {
			ticker := time.NewTicker(m.interval)
			defer ticker.Stop()
			for {
				publish(client, topic, randomReading(m.name))
				select {
				case <-ticker.C:
				case <-stop:
					return
				}
			}
		}(m)
		fmt.Printf("%s reports every %v\n", m.name, m.interval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	close(stop)
	fmt.Println("disconnecting...")
}

// randomReading drifts around the alert thresholds so every flag shows up now and then.
func randomReading(name string) MachineReading {
	status := "operando"
	if rand.Intn(10) == 0 {
		status = "parada"
	}
	return MachineReading{
		Maquina:     name,
		Volume:      10 + rand.Intn(91),
		Temperatura: 55 + rand.Intn(36),
		Status:      status,
		DataHora:    time.Now().UTC(),
	}
}

func publish(client paho.Client, topic string, reading MachineReading) {
	data, err := json.Marshal(reading)
	if err != nil {
		fmt.Printf("encode failed: %v\n", err)
		return
	}

	token := client.Publish(topic, 1, false, data)
	token.Wait()
	if token.Error() != nil {
		fmt.Printf("publish failed: %v\n", token.Error())
		return
	}
	fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), data)
}
