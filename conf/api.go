// Package conf provides a simple [section]option... configuration system
// loaded from files and/or strings of the form Section.Option=Value1,Value2.
package conf

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"time"
)

type ConfMapOption []string
type ConfMapSection map[string]ConfMapOption
type ConfMap map[string]ConfMapSection

// MakeConfMap returns an empty ConfMap.
func MakeConfMap() (confMap ConfMap) {
	confMap = make(ConfMap)
	return
}

// MakeConfMapFromFile returns a ConfMap loaded with the contents of confFilePath.
func MakeConfMapFromFile(confFilePath string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromFile(confFilePath)
	return
}

// MakeConfMapFromStrings returns a ConfMap loaded with the option updates in confStrings.
func MakeConfMapFromStrings(confStrings []string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromStrings(confStrings)
	return
}

// UpdateFromString applies a single "Section.Option=Value1,Value2,..." update
// to confMap.
func (confMap ConfMap) UpdateFromString(confString string) (err error) {
	var (
		equalSplit   []string
		ok           bool
		option       ConfMapOption
		optionName   string
		periodSplit  []string
		section      ConfMapSection
		sectionName  string
		value        string
		valueTrimmed string
		valuesSplit  []string
	)

	equalSplit = strings.SplitN(confString, "=", 2)
	if 2 != len(equalSplit) {
		err = fmt.Errorf("UpdateFromString(\"%v\") missing '='", confString)
		return
	}

	periodSplit = strings.SplitN(strings.TrimSpace(equalSplit[0]), ".", 2)
	if 2 != len(periodSplit) {
		err = fmt.Errorf("UpdateFromString(\"%v\") missing '.' in option designation", confString)
		return
	}

	sectionName = periodSplit[0]
	optionName = periodSplit[1]

	if ("" == sectionName) || ("" == optionName) {
		err = fmt.Errorf("UpdateFromString(\"%v\") empty SectionName or OptionName", confString)
		return
	}

	option = ConfMapOption{}

	valuesSplit = strings.Split(equalSplit[1], ",")
	for _, value = range valuesSplit {
		valueTrimmed = strings.TrimSpace(value)
		if "" != valueTrimmed {
			option = append(option, valueTrimmed)
		}
	}

	section, ok = confMap[sectionName]
	if !ok {
		section = make(ConfMapSection)
		confMap[sectionName] = section
	}

	section[optionName] = option

	err = nil
	return
}

// UpdateFromStrings applies each element of confStrings via UpdateFromString().
func (confMap ConfMap) UpdateFromStrings(confStrings []string) (err error) {
	var (
		confString string
	)

	for _, confString = range confStrings {
		err = confMap.UpdateFromString(confString)
		if nil != err {
			return
		}
	}

	err = nil
	return
}

// UpdateFromFile parses the ".conf" file at confFilePath into confMap.
//
// The file format is a sequence of lines of the forms:
//
//	[SectionName]
//	OptionName : Value1, Value2, ...
//	OptionName = Value1, Value2, ...
//	# comment
func (confMap ConfMap) UpdateFromFile(confFilePath string) (err error) {
	var (
		assignSplit     []string
		confFileContent []byte
		line            string
		lineNumber      int
		ok              bool
		option          ConfMapOption
		optionName      string
		section         ConfMapSection
		sectionName     string
		value           string
		valueTrimmed    string
		valuesSplit     []string
	)

	confFileContent, err = ioutil.ReadFile(confFilePath)
	if nil != err {
		return
	}

	section = nil

	for lineNumber, line = range strings.Split(string(confFileContent), "\n") {
		line = strings.TrimSpace(line)

		if ("" == line) || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				err = fmt.Errorf("%v:%v malformed SectionName line: \"%v\"", confFilePath, lineNumber+1, line)
				return
			}

			sectionName = strings.TrimSpace(line[1 : len(line)-1])
			if "" == sectionName {
				err = fmt.Errorf("%v:%v empty SectionName", confFilePath, lineNumber+1)
				return
			}

			section, ok = confMap[sectionName]
			if !ok {
				section = make(ConfMapSection)
				confMap[sectionName] = section
			}

			continue
		}

		if nil == section {
			err = fmt.Errorf("%v:%v OptionName line precedes any SectionName line", confFilePath, lineNumber+1)
			return
		}

		assignSplit = strings.SplitN(line, ":", 2)
		if 2 != len(assignSplit) {
			assignSplit = strings.SplitN(line, "=", 2)
			if 2 != len(assignSplit) {
				err = fmt.Errorf("%v:%v malformed OptionName line: \"%v\"", confFilePath, lineNumber+1, line)
				return
			}
		}

		optionName = strings.TrimSpace(assignSplit[0])
		if "" == optionName {
			err = fmt.Errorf("%v:%v empty OptionName", confFilePath, lineNumber+1)
			return
		}

		option = ConfMapOption{}

		valuesSplit = strings.Split(assignSplit[1], ",")
		for _, value = range valuesSplit {
			valueTrimmed = strings.TrimSpace(value)
			if "" != valueTrimmed {
				option = append(option, valueTrimmed)
			}
		}

		section[optionName] = option
	}

	err = nil
	return
}

func (confMap ConfMap) fetchOption(sectionName string, optionName string) (option ConfMapOption, err error) {
	var (
		ok      bool
		section ConfMapSection
	)

	section, ok = confMap[sectionName]
	if !ok {
		err = fmt.Errorf("cannot find [%v]", sectionName)
		return
	}

	option, ok = section[optionName]
	if !ok {
		err = fmt.Errorf("cannot find [%v]%v", sectionName, optionName)
		return
	}

	err = nil
	return
}

// FetchOptionValueStringSlice returns [sectionName]optionName's list of values.
func (confMap ConfMap) FetchOptionValueStringSlice(sectionName string, optionName string) (optionValue []string, err error) {
	optionValue, err = confMap.fetchOption(sectionName, optionName)
	return
}

// FetchOptionValueString returns [sectionName]optionName's single value.
func (confMap ConfMap) FetchOptionValueString(sectionName string, optionName string) (optionValue string, err error) {
	var (
		option ConfMapOption
	)

	option, err = confMap.fetchOption(sectionName, optionName)
	if nil != err {
		return
	}

	if 1 != len(option) {
		err = fmt.Errorf("[%v]%v must have a single value", sectionName, optionName)
		return
	}

	optionValue = option[0]

	err = nil
	return
}

// FetchOptionValueBool returns [sectionName]optionName's single value interpreted
// as a boolean. Accepted values are {"true","yes","on"} and {"false","no","off"}
// (case insensitive).
func (confMap ConfMap) FetchOptionValueBool(sectionName string, optionName string) (optionValue bool, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	switch strings.ToLower(optionValueString) {
	case "true", "yes", "on":
		optionValue = true
	case "false", "no", "off":
		optionValue = false
	default:
		err = fmt.Errorf("[%v]%v must be a boolean (\"%v\" not parseable)", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}

// FetchOptionValueUint16 returns [sectionName]optionName's single value interpreted as a uint16.
func (confMap ConfMap) FetchOptionValueUint16(sectionName string, optionName string) (optionValue uint16, err error) {
	var (
		optionValueString string
		optionValueUint64 uint64
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValueUint64, err = strconv.ParseUint(optionValueString, 10, 16)
	if nil != err {
		err = fmt.Errorf("[%v]%v must be a uint16 (\"%v\" not parseable)", sectionName, optionName, optionValueString)
		return
	}

	optionValue = uint16(optionValueUint64)

	err = nil
	return
}

// FetchOptionValueUint32 returns [sectionName]optionName's single value interpreted as a uint32.
func (confMap ConfMap) FetchOptionValueUint32(sectionName string, optionName string) (optionValue uint32, err error) {
	var (
		optionValueString string
		optionValueUint64 uint64
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValueUint64, err = strconv.ParseUint(optionValueString, 10, 32)
	if nil != err {
		err = fmt.Errorf("[%v]%v must be a uint32 (\"%v\" not parseable)", sectionName, optionName, optionValueString)
		return
	}

	optionValue = uint32(optionValueUint64)

	err = nil
	return
}

// FetchOptionValueUint64 returns [sectionName]optionName's single value interpreted as a uint64.
func (confMap ConfMap) FetchOptionValueUint64(sectionName string, optionName string) (optionValue uint64, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, err = strconv.ParseUint(optionValueString, 10, 64)
	if nil != err {
		err = fmt.Errorf("[%v]%v must be a uint64 (\"%v\" not parseable)", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}

// FetchOptionValueFloat64 returns [sectionName]optionName's single value interpreted as a float64.
func (confMap ConfMap) FetchOptionValueFloat64(sectionName string, optionName string) (optionValue float64, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, err = strconv.ParseFloat(optionValueString, 64)
	if nil != err {
		err = fmt.Errorf("[%v]%v must be a float64 (\"%v\" not parseable)", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}

// FetchOptionValueDuration returns [sectionName]optionName's single value
// interpreted as a time.Duration (e.g. "100ms", "10s", "1m").
func (confMap ConfMap) FetchOptionValueDuration(sectionName string, optionName string) (optionValue time.Duration, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, err = time.ParseDuration(optionValueString)
	if nil != err {
		err = fmt.Errorf("[%v]%v must be a time.Duration (\"%v\" not parseable)", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}
