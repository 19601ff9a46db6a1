package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
	TypeMongo    = "mongo"
)

type DatabaseConfig struct {
	Type         string            `yaml:"type" toml:"type"`
	Driver       string            `yaml:"driver,omitempty" toml:"driver"`
	Host         string            `yaml:"host,omitempty" toml:"host"`
	Port         int               `yaml:"port,omitempty" toml:"port"`
	Database     string            `yaml:"database,omitempty" toml:"database"`
	Username     string            `yaml:"username,omitempty" toml:"username"`
	Password     string            `yaml:"password,omitempty" toml:"password"`
	SSLMode      string            `yaml:"sslmode,omitempty" toml:"sslmode"`
	Schema       string            `yaml:"schema,omitempty" toml:"schema"`
	Path         string            `yaml:"path,omitempty" toml:"path"`
	DSN          string            `yaml:"dsn,omitempty" toml:"dsn"`
	URI          string            `yaml:"uri,omitempty" toml:"uri"`
	AuthDatabase string            `yaml:"auth_database,omitempty" toml:"auth_database"`
	Params       map[string]string `yaml:"params,omitempty" toml:"params"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
}

// LoadConfig reads a datasource file. Files ending in .toml are decoded as
// TOML and reject unknown keys; everything else is read as YAML.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := decode(configPath, data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Normalize()
	return &config, nil
}

func decode(path string, data []byte, out any) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), out)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	}
	return yaml.Unmarshal(data, out)
}

// Normalize canonicalizes the type name and fills per-type defaults.
func (c *Config) Normalize() {
	db := &c.Database
	db.Type = NormalizeType(db.Type)
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))

	switch db.Type {
	case TypePostgres:
		if db.Port == 0 && db.DSN == "" {
			db.Port = 5432
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	case TypeMySQL:
		if db.Port == 0 && db.DSN == "" {
			db.Port = 3306
		}
	case TypeSQLite:
		if db.Path == "" {
			db.Path = db.Database
		}
	case TypeMongo:
		if db.Port == 0 {
			db.Port = 27017
		}
	}
}

// DriverName returns the database/sql driver registered for the type.
func (c *Config) DriverName() string {
	switch c.Database.Type {
	case TypePostgres:
		if c.Database.Driver == "pgx" {
			return "pgx"
		}
		return "postgres"
	case TypeMySQL:
		return "mysql"
	case TypeSQLite:
		return "sqlite"
	default:
		return ""
	}
}

func (c *Config) GetConnectionString() string {
	db := c.Database
	if db.DSN != "" {
		return db.DSN
	}

	switch db.Type {
	case TypePostgres:
		parts := []string{
			"host=" + pgValue(db.Host),
			"port=" + strconv.Itoa(db.Port),
			"user=" + pgValue(db.Username),
			"password=" + pgValue(db.Password),
			"dbname=" + pgValue(db.Database),
			"sslmode=" + pgValue(db.SSLMode),
		}
		for _, key := range sortedKeys(db.Params) {
			parts = append(parts, key+"="+pgValue(db.Params[key]))
		}
		return strings.Join(parts, " ")
	case TypeMySQL:
		cfg := mysql.NewConfig()
		cfg.User = db.Username
		cfg.Passwd = db.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
		cfg.DBName = db.Database
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		if len(db.Params) > 0 {
			cfg.Params = make(map[string]string, len(db.Params))
			for k, v := range db.Params {
				cfg.Params[k] = v
			}
		}
		return cfg.FormatDSN()
	case TypeSQLite:
		if len(db.Params) == 0 {
			return db.Path
		}
		query := url.Values{}
		for _, key := range sortedKeys(db.Params) {
			query.Add(key, db.Params[key])
		}
		return db.Path + "?" + query.Encode()
	default:
		return ""
	}
}

// pgValue quotes a keyword/value connection string value when needed.
func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Describe renders a password-free location used in logs and table provenance.
func (c *Config) Describe() string {
	db := c.Database
	switch db.Type {
	case TypeSQLite:
		return "sqlite://" + db.Path
	case TypeMongo:
		return "mongodb://" + net.JoinHostPort(db.Host, strconv.Itoa(db.Port)) + "/" + db.Database
	default:
		if db.DSN != "" && db.Host == "" {
			return db.Type + "://(dsn)"
		}
		return fmt.Sprintf("%s://%s/%s", db.Type, net.JoinHostPort(db.Host, strconv.Itoa(db.Port)), db.Database)
	}
}

func (c *Config) GetMongoURI() string {
	if c.Database.URI != "" {
		return c.Database.URI
	}

	host := c.Database.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Database.Port
	if port == 0 {
		port = 27017
	}

	var credentials string
	if c.Database.Username != "" {
		credentials = url.QueryEscape(c.Database.Username)
		if c.Database.Password != "" {
			credentials = fmt.Sprintf("%s:%s", credentials, url.QueryEscape(c.Database.Password))
		}
		credentials += "@"
	}

	targetDatabase := strings.TrimSpace(c.Database.Database)
	if targetDatabase != "" {
		targetDatabase = "/" + targetDatabase
	}

	uri := fmt.Sprintf("mongodb://%s%s:%d%s", credentials, host, port, targetDatabase)

	if c.Database.AuthDatabase != "" {
		uri = fmt.Sprintf("%s?authSource=%s", uri, url.QueryEscape(c.Database.AuthDatabase))
	}

	return uri
}

// NormalizeType maps product and driver aliases onto a config type. An empty
// type means postgres.
func NormalizeType(dbType string) string {
	dbType = strings.ToLower(strings.TrimSpace(dbType))
	if dbType == "" {
		return TypePostgres
	}

	switch dbType {
	case "postgres", "postgresql", "pg":
		return TypePostgres
	case "mysql", "mariadb":
		return TypeMySQL
	case "sqlite", "sqlite3":
		return TypeSQLite
	case "mongo", "mongodb":
		return TypeMongo
	default:
		return dbType
	}
}
