package ubx

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Классы и ID опрашиваемых сообщений
const (
	ClassMON    = 0x0A
	IDMONVER    = 0x04 // MON-VER: версии прошивки и железа
	ClassSEC    = 0x27
	IDSECUNIQID = 0x03 // SEC-UNIQID: уникальный ID чипа
)

// Имена команд реестра
const (
	CmdSecUniqID = "SEC-UNIQID"
	CmdMonVer    = "MON-VER"
)

// ErrUnknownCommand: имя команды отсутствует в реестре.
var ErrUnknownCommand = errors.New("ubx: unknown command")

// Command: запрос к приёмнику. Ответ приходит с теми же class/id.
type Command struct {
	Name    string
	Class   uint8
	ID      uint8
	Payload []byte
}

// Packet собирает кадр запроса.
func (c Command) Packet() (Packet, error) {
	return NewPacket(c.Class, c.ID, c.Payload)
}

// Реестр заполняется один раз и дальше только читается.
var commands = map[string]Command{
	CmdSecUniqID: {Name: CmdSecUniqID, Class: ClassSEC, ID: IDSECUNIQID},
	CmdMonVer:    {Name: CmdMonVer, Class: ClassMON, ID: IDMONVER},
}

// LookupCommand возвращает команду по имени.
func LookupCommand(name string) (Command, error) {
	c, ok := commands[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q, known: %s", ErrUnknownCommand, name, strings.Join(Commands(), ", "))
	}
	c.Payload = append([]byte(nil), c.Payload...)
	return c, nil
}

// Commands возвращает отсортированный список имён.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
