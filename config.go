package checkpoints

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
)

// FileConfig is the on-disk configuration of the checkpoints tool.
type FileConfig struct {
	NetType        string `json:"net_type"`
	Checkpoints    *bool  `json:"checkpoints"`
	IndexDBPath    string `json:"index_db_path"`
	LogLevel       int    `json:"log_level"`
	RpcAddress     string `json:"rpc_address"`
	User           string `json:"user"`
	Pwd            string `json:"pwd"`
	MetricsAddress string `json:"metrics_address"`
}

func NewFileConfig(file string) (*FileConfig, error) {
	conf := &FileConfig{}
	err := conf.Init(file)
	if err != nil {
		return conf, fmt.Errorf("[NewFileConfig] failed to new config: %v", err)
	}
	return conf, nil
}

func (this *FileConfig) Init(fileName string) error {
	err := this.loadConfig(fileName)
	if err != nil {
		return fmt.Errorf("loadConfig error:%s", err)
	}
	return nil
}

// ServiceConfig resolves the network name and the checkpoints switch, which
// defaults to enabled when the file leaves it out.
func (this *FileConfig) ServiceConfig() (Config, error) {
	net, err := ParseNetwork(this.NetType)
	if err != nil {
		return Config{}, err
	}
	enabled := true
	if this.Checkpoints != nil {
		enabled = *this.Checkpoints
	}
	return Config{Network: net, Enabled: enabled}, nil
}

func (this *FileConfig) loadConfig(fileName string) error {
	data, err := this.readFile(fileName)
	if err != nil {
		return err
	}
	err = json.Unmarshal(data, this)
	if err != nil {
		return fmt.Errorf("json.Unmarshal FileConfig:%s error:%s", data, err)
	}
	return nil
}

func (this *FileConfig) readFile(fileName string) ([]byte, error) {
	file, err := os.OpenFile(fileName, os.O_RDONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("OpenFile %s error %s", fileName, err)
	}
	defer func() {
		err := file.Close()
		if err != nil {
			fmt.Println(fmt.Errorf("file %s close error %s", fileName, err))
		}
	}()
	data, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("ioutil.ReadAll %s error %s", fileName, err)
	}
	return data, nil
}
