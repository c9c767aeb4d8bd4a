package web

import (
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/power-sequencer/internal/logic"
	"github.com/sweeney/power-sequencer/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		return d.Round(time.Second).String()
	},
	"level": func(b bool) string {
		return string(logic.LevelOf(b))
	},
	"phaseClass": func(p logic.Phase) string {
		switch p {
		case logic.PhaseRunning:
			return "running"
		case logic.PhaseWaiting:
			return "waiting"
		case logic.PhasePoweredOff:
			return "off"
		default:
			return "booting"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Power Sequencer</title>
<style>
body { font: 14px/1.4 sans-serif; max-width: 36em; margin: 1.5em auto; padding: 0 1em; background: #fafafa; }
dl { display: grid; grid-template-columns: 12em 1fr; gap: 0.3em 1em; }
dt { color: #555; }
dd { margin: 0; font-family: monospace; }
.led { display: inline-block; width: 0.8em; height: 0.8em; border-radius: 50%; background: #ccc; margin-right: 0.4em; }
.led.lit { background: #2a2; }
.running { color: #2a2; }
.waiting { color: #d80; }
.off { color: #888; }
.booting { color: #36c; }
.down { color: #c22; }
</style>
</head>
<body>
<h1>Power Sequencer <small class="{{phaseClass .Phase}}">{{.Phase}}</small></h1>

<h3>Sequencer</h3>
<dl>
<dt>Power enable</dt><dd>{{level .Outputs.PowerEnable}}</dd>
<dt>Switched power</dt><dd>{{.Outputs.SwitchedLabel}}</dd>
<dt>Host acknowledged</dt><dd>{{if .State.HostAcknowledged}}yes{{else}}no{{end}}</dd>
<dt>LED</dt><dd><span class="led{{if .Outputs.LED}} lit{{end}}"></span>{{level .Outputs.LED}}{{if .State.BlinkEnabled}} (blinking){{end}}</dd>
</dl>

<h3>Transitions</h3>
<dl>
<dt>HOST_STARTED</dt><dd>{{.Counts.HostStarted}}</dd>
<dt>HOST_SHUTDOWN</dt><dd>{{.Counts.HostShutdown}}</dd>
<dt>SWITCHED_ON</dt><dd>{{.Counts.SwitchedOn}}</dd>
<dt>SWITCHED_OFF</dt><dd>{{.Counts.SwitchedOff}}</dd>
</dl>

<h3>Daemon</h3>
<dl>
<dt>MQTT</dt><dd>{{if not .Config.Broker}}disabled{{else if .MQTTConnected}}{{.Config.Broker}}{{else}}<span class="down">{{.Config.Broker}} (offline)</span>{{end}}</dd>
<dt>Uptime</dt><dd>{{uptime .Uptime}} since {{.StartTime.UTC.Format "2006-01-02 15:04:05Z"}}</dd>
<dt>GPIO chip</dt><dd>{{.Config.Chip}}</dd>
<dt>Timer</dt><dd>tick {{.Config.TickMs}}ms, blink {{.Config.BlinkMs}}ms</dd>
<dt>Report</dt><dd>{{if eq .Config.ReportMs 0}}disabled{{else}}every {{.Config.ReportMs}}ms{{end}}</dd>
</dl>

<p><a href="/index.json">index.json</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
