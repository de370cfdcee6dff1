package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/network"
)

func printHelp() {
	pterm.DefaultSection.Println("Commands")
	pterm.Println(strings.Join([]string{
		"list                    rooms in the lobby",
		"create NAME [MAX]       open a room for 2-4 players",
		"join ROOM_ID [NAME]     take a seat",
		"reconnect [TOKEN]       resume a seat from an earlier connection",
		"show | start | leave",
		"play ID [ID...]         place 1-3 cards claiming the round's type",
		"liar                    challenge the last move",
		"shoot                   pull the trigger",
		"quit",
	}, "\n"))
}

func renderRooms(rooms []models.RoomSummary) {
	if len(rooms) == 0 {
		pterm.Info.Println("No rooms yet")
		return
	}
	data := pterm.TableData{{"ID", "Name", "Players", "Phase"}}
	for _, r := range rooms {
		data = append(data, []string{r.ID, r.Name, fmt.Sprintf("%d/%d", r.PlayerCount, r.Capacity), string(r.Phase)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderRoom(v models.RoomView) {
	title := fmt.Sprintf("%s | %s | round %d", v.Name, v.Phase, v.RoundNumber)
	if v.BaseCardType != "" {
		title += " | " + string(v.BaseCardType)
	}
	pterm.DefaultSection.Println(title)

	data := pterm.TableData{{"", "Player", "Cards", "Chamber", "Odds"}}
	for _, p := range v.Players {
		mark := ""
		switch {
		case !p.IsActive:
			mark = "x"
		case p.IsCurrentTurn:
			mark = ">"
		}
		data = append(data, []string{
			mark,
			p.Name,
			fmt.Sprint(p.HandCount),
			fmt.Sprintf("%d/6", p.CurrentChamber+1),
			fmt.Sprintf("%.0f%%", p.FireOdds*100),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	if v.LastMove != nil {
		pterm.Info.Printfln("Last move: %s claims %d x %s", playerName(v, v.LastMove.PlayerID), v.LastMove.DeclaredClaim.Count, v.LastMove.DeclaredClaim.Type)
	}
	if v.WinnerID != "" {
		pterm.Success.Printfln("%s wins!", playerName(v, v.WinnerID))
	}
	if v.You == nil {
		return
	}
	hand := make([]string, 0, len(v.You.Hand))
	for _, c := range v.You.Hand {
		hand = append(hand, fmt.Sprintf("[%d %s]", c.ID, c.Type))
	}
	pterm.Println(pterm.LightCyan("Your hand: ") + strings.Join(hand, " "))

	var actions []string
	if v.You.CanMakeMove {
		actions = append(actions, "play")
	}
	if v.You.CanCallLiar {
		actions = append(actions, "liar")
	}
	if v.You.CanTriggerRoulette {
		actions = append(actions, "shoot")
	}
	if len(actions) > 0 {
		pterm.Println(pterm.LightGreen("Your move: ") + strings.Join(actions, ", "))
	}
}

func renderEvent(msgID uint16, result json.RawMessage, v models.RoomView) {
	switch msgID {
	case network.MsgTypeLiarResult:
		var ch struct {
			CallerID      string   `json:"callerId"`
			LoserID       string   `json:"loserId"`
			AllMatch      bool     `json:"allMatch"`
			RevealedTypes []string `json:"revealedTypes"`
		}
		if json.Unmarshal(result, &ch) == nil {
			verdict := pterm.LightRed("it was a lie")
			if ch.AllMatch {
				verdict = pterm.LightGreen("the claim was true")
			}
			pterm.Info.Printfln("%s called liar: %s, %s. %s takes the revolver",
				playerName(v, ch.CallerID), strings.Join(ch.RevealedTypes, " "), verdict, playerName(v, ch.LoserID))
		}
	case network.MsgTypeRouletteResult:
		var out struct {
			PlayerID   string `json:"playerId"`
			Eliminated bool   `json:"eliminated"`
		}
		if json.Unmarshal(result, &out) == nil {
			if out.Eliminated {
				pterm.Error.Printfln("BANG. %s is out", playerName(v, out.PlayerID))
			} else {
				pterm.Success.Printfln("click. %s survives", playerName(v, out.PlayerID))
			}
		}
	}
	renderRoom(v)
}

func playerName(v models.RoomView, id string) string {
	for _, p := range v.Players {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}
