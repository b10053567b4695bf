package resolver

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/jasm/classfile"
)

// BaseTypes returns the platform classes every resolver knows without an
// index. The table is built once on first use and shared read-only.
var BaseTypes = sync.OnceValue(func() *Snapshot {
	classes, err := parseTable(baseTable)
	if err != nil {
		panic(fmt.Sprintf("resolver: base table: %v", err))
	}
	return NewSnapshot(classes...)
})

var flagWords = map[string]uint16{
	"public":       classfile.AccPublic,
	"private":      classfile.AccPrivate,
	"protected":    classfile.AccProtected,
	"static":       classfile.AccStatic,
	"final":        classfile.AccFinal,
	"synchronized": classfile.AccSynchronized,
	"volatile":     classfile.AccVolatile,
	"transient":    classfile.AccTransient,
	"native":       classfile.AccNative,
	"interface":    classfile.AccInterface | classfile.AccAbstract,
	"abstract":     classfile.AccAbstract,
}

// parseTable reads the compact class table format:
//
//	class <name> <flags...> [extends <super>] [implements <a>,<b>]
//	  field <flags...> <name> <desc>
//	  method <flags...> <name> <desc>
func parseTable(src string) ([]*ClassInfo, error) {
	var out []*ClassInfo
	var cur *ClassInfo
	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "class":
			if len(f) < 2 {
				return nil, fmt.Errorf("line %d: class without name", line)
			}
			cur = &ClassInfo{Name: f[1], Super: classfile.ObjectClass}
			if cur.Name == classfile.ObjectClass {
				cur.Super = ""
			}
			for i := 2; i < len(f); i++ {
				switch f[i] {
				case "extends":
					i++
					cur.Super = f[i]
				case "implements":
					i++
					cur.Interfaces = strings.Split(f[i], ",")
				default:
					flag, ok := flagWords[f[i]]
					if !ok {
						return nil, fmt.Errorf("line %d: unknown flag %q", line, f[i])
					}
					cur.Flags |= flag
				}
			}
			out = append(out, cur)
		case "field", "method":
			if cur == nil || len(f) < 3 {
				return nil, fmt.Errorf("line %d: malformed member", line)
			}
			var flags uint16
			for _, w := range f[1 : len(f)-2] {
				flag, ok := flagWords[w]
				if !ok {
					return nil, fmt.Errorf("line %d: unknown flag %q", line, w)
				}
				flags |= flag
			}
			name, desc := f[len(f)-2], f[len(f)-1]
			if f[0] == "field" {
				cur.Fields = append(cur.Fields, FieldInfo{Name: name, Desc: desc, Flags: flags})
			} else {
				if cur.IsInterface() && flags&classfile.AccStatic == 0 {
					flags |= classfile.AccAbstract
				}
				cur.Methods = append(cur.Methods, MethodInfo{Name: name, Desc: desc, Flags: flags})
			}
		default:
			return nil, fmt.Errorf("line %d: unexpected %q", line, f[0])
		}
	}
	return out, sc.Err()
}

const baseTable = `
class java/lang/Object public
  method public <init> ()V
  method public toString ()Ljava/lang/String;
  method public hashCode ()I
  method public equals (Ljava/lang/Object;)Z
  method public final getClass ()Ljava/lang/Class;
  method public final notify ()V
  method public final notifyAll ()V
  method public final wait ()V
  method public final wait (J)V

class java/lang/CharSequence public interface
  method public length ()I
  method public charAt (I)C
  method public toString ()Ljava/lang/String;
class java/lang/Comparable public interface
  method public compareTo (Ljava/lang/Object;)I
class java/lang/Runnable public interface
  method public run ()V
class java/lang/Iterable public interface
  method public iterator ()Ljava/util/Iterator;
class java/util/Iterator public interface
  method public hasNext ()Z
  method public next ()Ljava/lang/Object;
class java/util/Comparator public interface
  method public compare (Ljava/lang/Object;Ljava/lang/Object;)I

class java/lang/String public final implements java/lang/CharSequence,java/lang/Comparable
  field public static final CASE_INSENSITIVE_ORDER Ljava/util/Comparator;
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
  method public <init> ([C)V
  method public length ()I
  method public charAt (I)C
  method public isEmpty ()Z
  method public equals (Ljava/lang/Object;)Z
  method public hashCode ()I
  method public toString ()Ljava/lang/String;
  method public concat (Ljava/lang/String;)Ljava/lang/String;
  method public substring (I)Ljava/lang/String;
  method public substring (II)Ljava/lang/String;
  method public indexOf (I)I
  method public indexOf (Ljava/lang/String;)I
  method public compareTo (Ljava/lang/String;)I
  method public trim ()Ljava/lang/String;
  method public toUpperCase ()Ljava/lang/String;
  method public toLowerCase ()Ljava/lang/String;
  method public toCharArray ()[C
  method public static valueOf (I)Ljava/lang/String;
  method public static valueOf (J)Ljava/lang/String;
  method public static valueOf (Ljava/lang/Object;)Ljava/lang/String;

class java/lang/Class public final
  method public getName ()Ljava/lang/String;
  method public getSimpleName ()Ljava/lang/String;

class java/lang/System public final
  field public static final in Ljava/io/InputStream;
  field public static final out Ljava/io/PrintStream;
  field public static final err Ljava/io/PrintStream;
  method public static currentTimeMillis ()J
  method public static nanoTime ()J
  method public static exit (I)V
  method public static arraycopy (Ljava/lang/Object;ILjava/lang/Object;II)V
  method public static getProperty (Ljava/lang/String;)Ljava/lang/String;
  method public static identityHashCode (Ljava/lang/Object;)I

class java/io/InputStream public abstract
  method public <init> ()V
  method public abstract read ()I
  method public close ()V
class java/io/OutputStream public abstract
  method public <init> ()V
  method public abstract write (I)V
  method public flush ()V
  method public close ()V
class java/io/PrintStream public extends java/io/OutputStream
  method public <init> (Ljava/io/OutputStream;)V
  method public write (I)V
  method public println ()V
  method public println (Z)V
  method public println (C)V
  method public println (I)V
  method public println (J)V
  method public println (F)V
  method public println (D)V
  method public println (Ljava/lang/String;)V
  method public println (Ljava/lang/Object;)V
  method public print (Z)V
  method public print (C)V
  method public print (I)V
  method public print (J)V
  method public print (D)V
  method public print (Ljava/lang/String;)V
  method public print (Ljava/lang/Object;)V

class java/lang/Throwable public
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
  method public <init> (Ljava/lang/String;Ljava/lang/Throwable;)V
  method public getMessage ()Ljava/lang/String;
  method public getCause ()Ljava/lang/Throwable;
  method public printStackTrace ()V
class java/lang/Exception public extends java/lang/Throwable
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
  method public <init> (Ljava/lang/String;Ljava/lang/Throwable;)V
class java/lang/Error public extends java/lang/Throwable
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/RuntimeException public extends java/lang/Exception
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
  method public <init> (Ljava/lang/String;Ljava/lang/Throwable;)V
class java/lang/IllegalArgumentException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/IllegalStateException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/NullPointerException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/ArithmeticException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/ClassCastException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/UnsupportedOperationException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/IndexOutOfBoundsException public extends java/lang/RuntimeException
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/lang/ArrayIndexOutOfBoundsException public extends java/lang/IndexOutOfBoundsException
  method public <init> ()V
  method public <init> (I)V
class java/lang/InterruptedException public extends java/lang/Exception
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V
class java/io/IOException public extends java/lang/Exception
  method public <init> ()V
  method public <init> (Ljava/lang/String;)V

class java/lang/Number public abstract
  method public <init> ()V
  method public abstract intValue ()I
  method public abstract longValue ()J
  method public abstract floatValue ()F
  method public abstract doubleValue ()D
class java/lang/Integer public final extends java/lang/Number implements java/lang/Comparable
  field public static final MIN_VALUE I
  field public static final MAX_VALUE I
  method public <init> (I)V
  method public intValue ()I
  method public longValue ()J
  method public floatValue ()F
  method public doubleValue ()D
  method public toString ()Ljava/lang/String;
  method public static valueOf (I)Ljava/lang/Integer;
  method public static parseInt (Ljava/lang/String;)I
  method public static toString (I)Ljava/lang/String;
class java/lang/Long public final extends java/lang/Number implements java/lang/Comparable
  field public static final MIN_VALUE J
  field public static final MAX_VALUE J
  method public <init> (J)V
  method public intValue ()I
  method public longValue ()J
  method public floatValue ()F
  method public doubleValue ()D
  method public static valueOf (J)Ljava/lang/Long;
  method public static parseLong (Ljava/lang/String;)J
class java/lang/Double public final extends java/lang/Number implements java/lang/Comparable
  field public static final NaN D
  method public <init> (D)V
  method public intValue ()I
  method public longValue ()J
  method public floatValue ()F
  method public doubleValue ()D
  method public static valueOf (D)Ljava/lang/Double;
  method public static parseDouble (Ljava/lang/String;)D
class java/lang/Boolean public final implements java/lang/Comparable
  field public static final TRUE Ljava/lang/Boolean;
  field public static final FALSE Ljava/lang/Boolean;
  method public booleanValue ()Z
  method public static valueOf (Z)Ljava/lang/Boolean;
class java/lang/Character public final implements java/lang/Comparable
  method public charValue ()C
  method public static valueOf (C)Ljava/lang/Character;
  method public static isDigit (C)Z
  method public static isLetter (C)Z

class java/lang/Math public final
  field public static final E D
  field public static final PI D
  method public static abs (I)I
  method public static abs (J)J
  method public static abs (D)D
  method public static max (II)I
  method public static max (JJ)J
  method public static min (II)I
  method public static min (JJ)J
  method public static sqrt (D)D
  method public static pow (DD)D

class java/lang/StringBuilder public final implements java/lang/CharSequence
  method public <init> ()V
  method public <init> (I)V
  method public <init> (Ljava/lang/String;)V
  method public append (Z)Ljava/lang/StringBuilder;
  method public append (C)Ljava/lang/StringBuilder;
  method public append (I)Ljava/lang/StringBuilder;
  method public append (J)Ljava/lang/StringBuilder;
  method public append (D)Ljava/lang/StringBuilder;
  method public append (Ljava/lang/String;)Ljava/lang/StringBuilder;
  method public append (Ljava/lang/Object;)Ljava/lang/StringBuilder;
  method public length ()I
  method public charAt (I)C
  method public reverse ()Ljava/lang/StringBuilder;
  method public toString ()Ljava/lang/String;

class java/util/Collection public interface implements java/lang/Iterable
  method public size ()I
  method public isEmpty ()Z
  method public add (Ljava/lang/Object;)Z
  method public contains (Ljava/lang/Object;)Z
class java/util/List public interface implements java/util/Collection
  method public get (I)Ljava/lang/Object;
  method public set (ILjava/lang/Object;)Ljava/lang/Object;
  method public remove (I)Ljava/lang/Object;
class java/util/ArrayList public implements java/util/List
  method public <init> ()V
  method public <init> (I)V
  method public size ()I
  method public isEmpty ()Z
  method public add (Ljava/lang/Object;)Z
  method public get (I)Ljava/lang/Object;
  method public set (ILjava/lang/Object;)Ljava/lang/Object;
  method public remove (I)Ljava/lang/Object;
  method public iterator ()Ljava/util/Iterator;
class java/util/Map public interface
  method public size ()I
  method public get (Ljava/lang/Object;)Ljava/lang/Object;
  method public put (Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;
  method public containsKey (Ljava/lang/Object;)Z
class java/util/HashMap public implements java/util/Map
  method public <init> ()V
  method public <init> (I)V
  method public size ()I
  method public get (Ljava/lang/Object;)Ljava/lang/Object;
  method public put (Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;
  method public containsKey (Ljava/lang/Object;)Z
`
